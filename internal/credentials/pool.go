// Package credentials implements the rotating credential pool that backs a
// gateway. The pool owns the cursor, the bound backend session and the
// active/disabled flags; every transition happens under one mutex so the
// flags always agree with the index.
package credentials

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/agrimitra/advisor/internal/backend"
)

// Pool is an ordered, fixed set of credentials with a round-robin cursor.
type Pool struct {
	name   string
	binder backend.Binder

	mu       sync.Mutex
	creds    []string
	index    int
	session  backend.Session
	active   bool
	disabled bool
}

// Snapshot is a point-in-time view of a pool.
type Snapshot struct {
	Size     int  `json:"size"`
	Index    int  `json:"index"`
	Active   bool `json:"active"`
	Disabled bool `json:"disabled"`
}

// NewPool creates a pool over creds. The slice is copied; the pool never
// shrinks. Call Activate before first use.
func NewPool(name string, creds []string, binder backend.Binder) *Pool {
	cp := make([]string, len(creds))
	copy(cp, creds)
	return &Pool{name: name, binder: binder, creds: cp}
}

// Len returns the number of credentials.
func (p *Pool) Len() int {
	return len(p.creds)
}

// Activate binds the credential at the current index. An empty pool is
// marked disabled. Reports whether a session is bound afterwards.
func (p *Pool) Activate(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activateLocked(ctx)
	return p.active
}

// Rotate advances the cursor by one and re-activates. No-op on a disabled pool.
func (p *Pool) Rotate(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rotateLocked(ctx)
}

// RotateFrom rotates only if the cursor is still at observed. Concurrent
// failures against the same credential therefore advance it once.
// Reports whether this call moved the cursor.
func (p *Pool) RotateFrom(ctx context.Context, observed int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index != observed || p.disabled {
		return false
	}
	p.rotateLocked(ctx)
	return true
}

// Acquire returns the bound session and the index it belongs to, binding
// first when nothing is bound. ok is false once the pool is disabled.
func (p *Pool) Acquire(ctx context.Context) (sess backend.Session, index int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disabled {
		return nil, p.index, false
	}
	if p.session == nil {
		p.activateLocked(ctx)
	}
	if !p.active {
		return nil, p.index, false
	}
	return p.session, p.index, true
}

// Active reports whether a session is currently bound.
func (p *Pool) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Index returns the current cursor.
func (p *Pool) Index() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}

// Snapshot returns the pool state.
func (p *Pool) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{Size: len(p.creds), Index: p.index, Active: p.active, Disabled: p.disabled}
}

func (p *Pool) rotateLocked(ctx context.Context) {
	if p.disabled || len(p.creds) == 0 {
		return
	}
	p.index = (p.index + 1) % len(p.creds)
	log.Warn().
		Str("pool", p.name).
		Int("key_index", p.index).
		Msg("Rotating API key")
	p.activateLocked(ctx)
}

// activateLocked binds the current credential, walking forward on bind
// failures. A full cycle without a successful bind disables the pool.
func (p *Pool) activateLocked(ctx context.Context) {
	p.session = nil
	p.active = false

	if len(p.creds) == 0 {
		if !p.disabled {
			log.Warn().Str("pool", p.name).Msg("No valid API keys found, AI features disabled")
		}
		p.disabled = true
		return
	}
	if p.disabled {
		return
	}

	start := p.index
	for {
		sess, err := p.binder.Bind(ctx, p.creds[p.index])
		if err == nil {
			p.session = sess
			p.active = true
			log.Info().
				Str("pool", p.name).
				Int("key_index", p.index).
				Str("key", Mask(p.creds[p.index])).
				Msg("Bound API key")
			return
		}

		log.Error().
			Str("pool", p.name).
			Int("key_index", p.index).
			Err(err).
			Msg("Failed to bind API key")

		p.index = (p.index + 1) % len(p.creds)
		if p.index == start {
			p.disabled = true
			log.Error().Str("pool", p.name).Msg("All API keys failed to bind, pool disabled until restart")
			return
		}
	}
}

// Mask renders a credential safe for logs.
func Mask(cred string) string {
	if len(cred) <= 4 {
		return "****"
	}
	return "****" + cred[len(cred)-4:]
}
