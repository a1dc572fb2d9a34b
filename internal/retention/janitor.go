// Package retention expires idle conversation sessions.
//
// The janitor runs as a background goroutine started by the server binary
// and respects context cancellation for graceful shutdown. The advisory
// core itself never spawns goroutines.
package retention

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agrimitra/advisor/internal/metrics"
)

// DefaultInterval is used when the configured sweep interval is not positive.
const DefaultInterval = 10 * time.Minute

// Purger removes sessions idle since before the cutoff and reports how many.
type Purger interface {
	PurgeIdle(ctx context.Context, before time.Time) int
}

// Janitor periodically purges sessions idle for longer than ttl.
type Janitor struct {
	store    Purger
	interval time.Duration
	ttl      time.Duration
	now      func() time.Time
}

// NewJanitor creates a janitor. It returns nil when ttl is not positive,
// meaning sessions are kept for the process lifetime.
func NewJanitor(store Purger, interval, ttl time.Duration) *Janitor {
	if ttl <= 0 {
		return nil
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Janitor{store: store, interval: interval, ttl: ttl, now: time.Now}
}

// Start runs sweeps until ctx is canceled.
func (j *Janitor) Start(ctx context.Context) {
	log.Info().
		Dur("interval", j.interval).
		Dur("ttl", j.ttl).
		Msg("Session janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Session janitor stopped")
			return
		case <-ticker.C:
			j.RunCycle(ctx)
		}
	}
}

// RunCycle performs one sweep and returns the number of purged sessions.
func (j *Janitor) RunCycle(ctx context.Context) int {
	cutoff := j.now().Add(-j.ttl)
	n := j.store.PurgeIdle(ctx, cutoff)
	if n > 0 {
		metrics.SessionsExpired.Add(float64(n))
		log.Info().
			Int("purged", n).
			Time("cutoff", cutoff).
			Msg("Session janitor cycle complete")
	}
	return n
}
