// Package contracts defines the service interfaces the HTTP handlers
// depend on. pkg/server wires the concrete gateway, planner and session
// store behind them; tests substitute fakes.
package contracts

import (
	"context"

	"github.com/agrimitra/advisor/internal/conversation"
	"github.com/agrimitra/advisor/internal/credentials"
	"github.com/agrimitra/advisor/internal/prompts"
	"github.com/agrimitra/advisor/internal/schedule"
	"github.com/agrimitra/advisor/internal/sessions"
)

// AdvisorService answers chat messages for one domain.
// Implemented by *gateway.Advisor.
type AdvisorService interface {
	Domain() string
	GenerateResponse(ctx context.Context, message string, dctx prompts.DomainContext, history []conversation.Turn) string
	Status() credentials.Snapshot
}

// ScheduleService generates farming calendars.
// Implemented by *schedule.Planner.
type ScheduleService interface {
	GenerateSchedule(ctx context.Context, crop, location, plantingDate string) ([]schedule.Task, error)
	Active() bool
}

// SessionStore persists conversation sessions.
// Implemented by *sessions.MemoryStore.
type SessionStore interface {
	Create(ctx context.Context, domain string, turns ...conversation.Turn) (*sessions.Session, error)
	Get(ctx context.Context, id string) (*sessions.Session, error)
	Append(ctx context.Context, id string, turns ...conversation.Turn) (*sessions.Session, error)
	Delete(ctx context.Context, id string) error
}
