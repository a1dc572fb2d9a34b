// Package gateway runs prompts against a credential pool with
// rotate-and-retry semantics.
//
// A Gateway makes at most one attempt per credential (one full cycle of
// the pool). Any backend error, or any error from an accept func, counts
// as a failed attempt: the credential is rotated and the next one is
// tried. Outcomes are explicit values: text on success, ErrGatewayInactive
// when the pool was unusable from the start, *ExhaustedError once the
// budget is spent.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/agrimitra/advisor/internal/credentials"
	"github.com/agrimitra/advisor/internal/metrics"
)

var tracer = otel.Tracer("github.com/agrimitra/advisor/internal/gateway")

// ErrGatewayInactive means the pool had no usable credential before any
// attempt was made. No network call happens in that case.
var ErrGatewayInactive = errors.New("gateway inactive: no usable API keys")

var errPoolDisabled = errors.New("credential pool disabled")

// ExhaustedError is returned after every credential in the pool failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all API keys exhausted after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Options configure a Gateway.
type Options struct {
	// Domain labels logs, spans and metrics.
	Domain string
	// RetryDelay is the pause between attempts. Zero retries immediately.
	RetryDelay time.Duration
	// MaxInFlight caps concurrent generations. Zero means unlimited.
	MaxInFlight int
}

// Gateway owns one credential pool and runs prompts against it.
type Gateway struct {
	domain     string
	pool       *credentials.Pool
	retryDelay time.Duration
	sem        *semaphore.Weighted
}

// New activates pool and wraps it in a Gateway.
func New(ctx context.Context, pool *credentials.Pool, opts Options) *Gateway {
	g := &Gateway{
		domain:     opts.Domain,
		pool:       pool,
		retryDelay: opts.RetryDelay,
	}
	if opts.MaxInFlight > 0 {
		g.sem = semaphore.NewWeighted(int64(opts.MaxInFlight))
	}
	if !pool.Activate(ctx) {
		log.Warn().Str("domain", g.domain).Msg("Gateway starting inactive, AI features disabled")
	}
	return g
}

// Domain returns the gateway's label.
func (g *Gateway) Domain() string { return g.domain }

// Status returns the pool snapshot.
func (g *Gateway) Status() credentials.Snapshot { return g.pool.Snapshot() }

// Active reports whether generation can be attempted.
func (g *Gateway) Active() bool { return !g.pool.Snapshot().Disabled }

// Generate runs prompt and returns the first text produced.
func (g *Gateway) Generate(ctx context.Context, prompt string) (string, error) {
	return g.GenerateFunc(ctx, prompt, nil)
}

// GenerateFunc is Generate with an output check. A non-nil error from
// accept is handled exactly like a backend failure.
func (g *Gateway) GenerateFunc(ctx context.Context, prompt string, accept func(text string) error) (string, error) {
	if !g.Active() {
		metrics.GenerationOutcomes.WithLabelValues(g.domain, "inactive").Inc()
		return "", ErrGatewayInactive
	}

	if g.sem != nil {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			metrics.GenerationOutcomes.WithLabelValues(g.domain, "canceled").Inc()
			return "", err
		}
		defer g.sem.Release(1)
	}

	size := g.pool.Len()
	ctx, span := tracer.Start(ctx, "gateway.generate",
		trace.WithAttributes(
			attribute.String("agrimitra.domain", g.domain),
			attribute.Int("agrimitra.pool_size", size),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.GenerationLatency.WithLabelValues(g.domain).Observe(time.Since(start).Seconds())
	}()

	var (
		attempts int
		lastErr  error
		text     string
	)

	op := func() error {
		sess, idx, ok := g.pool.Acquire(ctx)
		if !ok {
			return backoff.Permanent(errPoolDisabled)
		}
		attempts++
		metrics.GenerationAttempts.WithLabelValues(g.domain).Inc()

		out, err := sess.Generate(ctx, prompt)
		if err == nil && accept != nil {
			err = accept(out)
		}
		if err == nil {
			text = out
			span.SetAttributes(attribute.Int("agrimitra.key_index", idx))
			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return backoff.Permanent(ctxErr)
		}

		lastErr = err
		metrics.GenerationFailures.WithLabelValues(g.domain).Inc()
		span.AddEvent("attempt failed", trace.WithAttributes(
			attribute.Int("agrimitra.key_index", idx),
			attribute.String("error", err.Error()),
		))
		log.Error().
			Str("domain", g.domain).
			Int("key_index", idx).
			Int("attempt", attempts).
			Err(err).
			Msg("Generation attempt failed")

		if g.pool.RotateFrom(ctx, idx) {
			metrics.KeyRotations.WithLabelValues(g.domain).Inc()
		}
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(g.policy(), uint64(size-1)), ctx))
	span.SetAttributes(attribute.Int("agrimitra.attempts", attempts))

	switch {
	case err == nil:
		metrics.GenerationOutcomes.WithLabelValues(g.domain, "success").Inc()
		return text, nil

	case ctx.Err() != nil:
		metrics.GenerationOutcomes.WithLabelValues(g.domain, "canceled").Inc()
		span.SetStatus(codes.Error, "canceled")
		return "", ctx.Err()

	case lastErr == nil:
		// Disabled between the activity check and the first acquire.
		metrics.GenerationOutcomes.WithLabelValues(g.domain, "inactive").Inc()
		return "", ErrGatewayInactive
	}

	exhausted := &ExhaustedError{Attempts: attempts, Err: lastErr}
	metrics.GenerationOutcomes.WithLabelValues(g.domain, "exhausted").Inc()
	span.RecordError(exhausted)
	span.SetStatus(codes.Error, "keys exhausted")
	log.Error().
		Str("domain", g.domain).
		Int("attempts", attempts).
		Err(lastErr).
		Msg("All API keys exhausted")
	return "", exhausted
}

func (g *Gateway) policy() backoff.BackOff {
	if g.retryDelay <= 0 {
		return &backoff.ZeroBackOff{}
	}
	return backoff.NewConstantBackOff(g.retryDelay)
}
