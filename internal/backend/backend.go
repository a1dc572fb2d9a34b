// Package backend defines the generation backend abstraction used by the
// credential pool and ships the built-in HTTP drivers.
//
// A Driver binds one credential to a Session. A Session turns a fully
// assembled prompt into text. Failure modes are opaque: any error from
// Bind or Generate is treated uniformly by callers.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Session is a backend handle bound to a single credential.
type Session interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Binder binds a credential to a live Session.
type Binder interface {
	Bind(ctx context.Context, credential string) (Session, error)
}

// Driver is a named Binder.
type Driver interface {
	Binder
	Kind() string
}

// Options configure a driver instance.
type Options struct {
	Model    string
	Endpoint string
	Timeout  time.Duration

	// HTTPClient overrides the client built from Timeout. Used by tests.
	HTTPClient *http.Client
}

func (o Options) client() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

var (
	// ErrEmptyCredential is returned by Bind for a blank credential.
	ErrEmptyCredential = errors.New("backend: empty credential")
	// ErrUnknownDriver is returned by Registry.New for an unregistered kind.
	ErrUnknownDriver = errors.New("backend: unknown driver")
	// ErrEmptyResponse is returned when the backend answers without text.
	ErrEmptyResponse = errors.New("backend: empty response")
)

// Factory builds a Driver from options.
type Factory func(opts Options) Driver

// Registry maps driver kinds to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a registry with the built-in drivers registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(KindGemini, func(opts Options) Driver { return NewGemini(opts) })
	r.Register(KindOpenAI, func(opts Options) Driver { return NewOpenAI(opts) })
	return r
}

// Register adds or replaces the factory for kind.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// New builds the driver registered under kind.
func (r *Registry) New(kind string, opts Options) (Driver, error) {
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, kind)
	}
	return f(opts), nil
}

// Kinds lists registered driver kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
