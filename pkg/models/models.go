// Package models holds the JSON request and response bodies of the
// AgriMitra HTTP API.
package models

import "time"

// ── Chat ─────────────────────────────────────────────────────

// ChatRequest is the body of POST /api/v1/advisors/{domain}/chat.
//
// History is accepted loosely shaped ({"role": ..., "content": ...}) and is
// ignored when SessionID names an existing session.
type ChatRequest struct {
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	History   []map[string]any       `json:"history,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
}

// ChatResponse carries the advisor's reply.
type ChatResponse struct {
	Reply     string `json:"reply"`
	Domain    string `json:"domain"`
	SessionID string `json:"session_id"`
}

// ── Calendar ─────────────────────────────────────────────────

// ScheduleRequest is the body of POST /api/v1/calendar/schedule.
type ScheduleRequest struct {
	Crop         string `json:"crop"`
	Location     string `json:"location"`
	PlantingDate string `json:"planting_date"`
}

// ScheduledTask is a generated task stamped with an id and its request.
type ScheduledTask struct {
	ID          string `json:"id"`
	Crop        string `json:"crop"`
	Location    string `json:"location"`
	Title       string `json:"title"`
	Date        string `json:"date"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Completed   bool   `json:"completed"`
}

// ScheduleResponse is returned after a successful schedule generation.
type ScheduleResponse struct {
	Message  string          `json:"message"`
	Tasks    []ScheduledTask `json:"tasks"`
	Crop     string          `json:"crop"`
	Location string          `json:"location"`
}

// ── Status ───────────────────────────────────────────────────

// PoolStatus describes one domain's credential pool. Credentials are
// never included.
type PoolStatus struct {
	Domain   string `json:"domain"`
	Size     int    `json:"size"`
	Index    int    `json:"index"`
	Active   bool   `json:"active"`
	Disabled bool   `json:"disabled"`
}

// StatusResponse is returned by GET /api/v1/status.
type StatusResponse struct {
	Service string       `json:"service"`
	Version string       `json:"version"`
	Backend string       `json:"backend"`
	Model   string       `json:"model"`
	Pools   []PoolStatus `json:"pools"`
	Time    time.Time    `json:"time"`
}

// AIStatus is returned by GET /api/v1/ai_status.
type AIStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// AIStatus values.
const (
	AIStatusActive   = "active"
	AIStatusInactive = "inactive"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
