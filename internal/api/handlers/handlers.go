// Package handlers implements the HTTP handlers for the AgriMitra advisory
// gateway. Handlers depend on the service interfaces in pkg/contracts.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/agrimitra/advisor/internal/config"
	"github.com/agrimitra/advisor/internal/conversation"
	"github.com/agrimitra/advisor/internal/gateway"
	"github.com/agrimitra/advisor/internal/prompts"
	"github.com/agrimitra/advisor/internal/schedule"
	"github.com/agrimitra/advisor/internal/sessions"
	"github.com/agrimitra/advisor/pkg/contracts"
	"github.com/agrimitra/advisor/pkg/models"
)

// maxBodyBytes bounds request bodies; history is the only large field.
const maxBodyBytes = 1 << 20

// Handlers holds all handler dependencies.
type Handlers struct {
	Config   *config.Config
	Advisors map[string]contracts.AdvisorService
	Planner  contracts.ScheduleService
	Sessions contracts.SessionStore
}

// New creates a Handlers instance. Advisors are keyed by their domain.
func New(cfg *config.Config, advisors []contracts.AdvisorService, planner contracts.ScheduleService, sess contracts.SessionStore) *Handlers {
	byDomain := make(map[string]contracts.AdvisorService, len(advisors))
	for _, a := range advisors {
		byDomain[a.Domain()] = a
	}
	return &Handlers{
		Config:   cfg,
		Advisors: byDomain,
		Planner:  planner,
		Sessions: sess,
	}
}

// ══════════════════════════════════════════════════════════════
// ── Chat ─────────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// Chat answers a message for the domain in the URL. The conversation is
// recorded in a session whose id is returned for follow-up messages.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	advisor, ok := h.Advisors[domain]
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("%v: %s", prompts.ErrUnknownDomain, domain))
		return
	}

	var req models.ChatRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	ctx := r.Context()
	var history []conversation.Turn
	if req.SessionID != "" {
		sess, err := h.Sessions.Get(ctx, req.SessionID)
		if err != nil {
			respondSessionError(w, err)
			return
		}
		if sess.Domain != domain {
			respondError(w, http.StatusConflict,
				fmt.Sprintf("session %s belongs to the %s advisor", sess.ID, sess.Domain))
			return
		}
		history = sess.Turns
	} else {
		history = conversation.Normalize(req.History)
	}
	history = conversation.Tail(history, h.Config.Gateway.HistoryLimit)

	ctx, cancel := h.requestContext(ctx)
	defer cancel()
	reply := advisor.GenerateResponse(ctx, message, prompts.DomainContext(req.Context), history)

	exchange := []conversation.Turn{
		{Role: conversation.RoleUser, Content: message},
		{Role: conversation.RoleAssistant, Content: reply},
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sess, err := h.Sessions.Create(r.Context(), domain, append(history, exchange...)...)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		sessionID = sess.ID
	} else if _, err := h.Sessions.Append(r.Context(), sessionID, exchange...); err != nil {
		// Deleted while the reply was being generated; the reply still stands.
		log.Warn().Str("session_id", sessionID).Err(err).Msg("Failed to record chat turn")
	}

	respondJSON(w, http.StatusOK, models.ChatResponse{
		Reply:     reply,
		Domain:    domain,
		SessionID: sessionID,
	})
}

// ══════════════════════════════════════════════════════════════
// ── Calendar ─────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// GenerateSchedule produces a farming calendar for a crop.
func (h *Handlers) GenerateSchedule(w http.ResponseWriter, r *http.Request) {
	if !h.Planner.Active() {
		respondError(w, http.StatusServiceUnavailable, "AI service is currently unavailable. Please check server logs/keys.")
		return
	}

	var req models.ScheduleRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Crop) == "" || strings.TrimSpace(req.Location) == "" {
		respondError(w, http.StatusBadRequest, "crop and location are required")
		return
	}

	ctx, cancel := h.requestContext(r.Context())
	defer cancel()

	tasks, err := h.Planner.GenerateSchedule(ctx, req.Crop, req.Location, req.PlantingDate)
	switch {
	case err == nil:
	case errors.Is(err, schedule.ErrInvalidPlantingDate):
		respondError(w, http.StatusBadRequest, "Invalid date format. Use YYYY-MM-DD")
		return
	case errors.Is(err, gateway.ErrGatewayInactive):
		respondError(w, http.StatusServiceUnavailable, "AI service is currently unavailable. Please check server logs/keys.")
		return
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		respondError(w, http.StatusGatewayTimeout, "schedule generation timed out")
		return
	default:
		log.Error().Err(err).Str("crop", req.Crop).Msg("Schedule generation failed")
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	if len(tasks) == 0 {
		respondError(w, http.StatusBadGateway, "Failed to generate schedule. User may need to retry.")
		return
	}

	out := make([]models.ScheduledTask, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, models.ScheduledTask{
			ID:          uuid.New().String(),
			Crop:        req.Crop,
			Location:    req.Location,
			Title:       t.Title,
			Date:        t.Date,
			Category:    string(t.Category),
			Description: t.Description,
			Priority:    string(t.Priority),
			Completed:   t.Completed,
		})
	}

	respondJSON(w, http.StatusOK, models.ScheduleResponse{
		Message:  fmt.Sprintf("Successfully generated %d tasks for %s", len(out), req.Crop),
		Tasks:    out,
		Crop:     req.Crop,
		Location: req.Location,
	})
}

// ══════════════════════════════════════════════════════════════
// ── Sessions ─────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Delete(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		respondSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ══════════════════════════════════════════════════════════════
// ── Status ───────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// Status reports every domain's credential pool.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	domains := make([]string, 0, len(h.Advisors))
	for d := range h.Advisors {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	pools := make([]models.PoolStatus, 0, len(domains))
	for _, d := range domains {
		snap := h.Advisors[d].Status()
		pools = append(pools, models.PoolStatus{
			Domain:   d,
			Size:     snap.Size,
			Index:    snap.Index,
			Active:   snap.Active,
			Disabled: snap.Disabled,
		})
	}

	respondJSON(w, http.StatusOK, models.StatusResponse{
		Service: "agrimitra-advisor",
		Version: h.Config.Version,
		Backend: h.Config.Backend.Driver,
		Model:   h.Config.Backend.Model,
		Pools:   pools,
		Time:    time.Now().UTC(),
	})
}

// AIStatus reports whether schedule generation is available.
func (h *Handlers) AIStatus(w http.ResponseWriter, r *http.Request) {
	if h.Planner.Active() {
		respondJSON(w, http.StatusOK, models.AIStatus{Status: models.AIStatusActive, Message: "AI is ready"})
		return
	}
	respondJSON(w, http.StatusOK, models.AIStatus{
		Status:  models.AIStatusInactive,
		Message: "AI is disabled. Please check API keys in .env file.",
	})
}

// ── Helpers ──────────────────────────────────────────────────

func (h *Handlers) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := h.Config.Gateway.RequestTimeout; d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func respondSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, sessions.ErrNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, models.ErrorResponse{Error: message})
}
