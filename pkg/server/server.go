// Package server provides the public entry point for initializing the
// AgriMitra advisory gateway.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(fmt.Sprintf(":%d", srv.Port), srv.Handler)
//
// cmd/advisorctl uses the same wiring and calls Advisors and Planner
// directly instead of serving HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/agrimitra/advisor/internal/api"
	"github.com/agrimitra/advisor/internal/api/handlers"
	"github.com/agrimitra/advisor/internal/backend"
	"github.com/agrimitra/advisor/internal/config"
	"github.com/agrimitra/advisor/internal/credentials"
	"github.com/agrimitra/advisor/internal/gateway"
	"github.com/agrimitra/advisor/internal/prompts"
	"github.com/agrimitra/advisor/internal/retention"
	"github.com/agrimitra/advisor/internal/schedule"
	"github.com/agrimitra/advisor/internal/sessions"
	"github.com/agrimitra/advisor/internal/telemetry"
	"github.com/agrimitra/advisor/pkg/contracts"
)

// scheduleDomain labels the planner's pool in logs and metrics.
const scheduleDomain = "schedule"

// Server holds the initialized advisory gateway.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Config is the resolved configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// Advisors holds one advisor per domain, each with its own pool.
	Advisors map[string]*gateway.Advisor

	// Planner generates farming calendars.
	Planner *schedule.Planner

	// Sessions is the in-memory conversation store.
	Sessions *sessions.MemoryStore

	// Janitor expires idle sessions. Nil when sessions never expire; the
	// caller runs Start in its own goroutine.
	Janitor *retention.Janitor

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New loads configuration from the environment and returns a ready Server.
func New(ctx context.Context) (*Server, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig builds the backend driver named by cfg and wires the server.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	drv, err := backend.NewRegistry().New(cfg.Backend.Driver, backend.Options{
		Model:    cfg.Backend.Model,
		Endpoint: cfg.Backend.Endpoint,
		Timeout:  cfg.Backend.Timeout,
	})
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("driver", drv.Kind()).
		Str("model", cfg.Backend.Model).
		Int("api_keys", len(cfg.Backend.APIKeys)).
		Msg("Backend driver initialized")
	return NewWithBinder(ctx, cfg, drv)
}

// NewWithBinder wires the server over an explicit backend binder.
func NewWithBinder(ctx context.Context, cfg *config.Config, binder backend.Binder) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	opts := func(domain string) gateway.Options {
		return gateway.Options{
			Domain:      domain,
			RetryDelay:  cfg.Gateway.RetryDelay,
			MaxInFlight: cfg.Gateway.MaxInFlight,
		}
	}
	newGateway := func(domain string) *gateway.Gateway {
		pool := credentials.NewPool(domain, cfg.Backend.APIKeys, binder)
		return gateway.New(ctx, pool, opts(domain))
	}

	templates := prompts.Templates(nil)
	domains := make([]string, 0, len(templates))
	for d := range templates {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	advisors := make(map[string]*gateway.Advisor, len(domains))
	services := make([]contracts.AdvisorService, 0, len(domains))
	for _, d := range domains {
		adv := gateway.NewAdvisor(newGateway(d), templates[d])
		advisors[d] = adv
		services = append(services, adv)
		log.Info().Str("domain", d).Bool("active", adv.Gateway().Active()).Msg("Advisor initialized")
	}

	planner := schedule.NewPlanner(newGateway(scheduleDomain), nil)
	store := sessions.NewMemoryStore(cfg.Gateway.HistoryLimit)

	h := handlers.New(cfg, services, planner, store)
	router := api.NewRouter(cfg, h)

	return &Server{
		Handler:      router,
		Config:       cfg,
		Port:         cfg.Port,
		Advisors:     advisors,
		Planner:      planner,
		Sessions:     store,
		Janitor:      retention.NewJanitor(store, cfg.Sessions.SweepInterval, cfg.Sessions.TTL),
		ShutdownFunc: shutdown,
	}, nil
}
