package api

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rationly/rationbot/internal/broadcast"
	"github.com/rationly/rationbot/internal/chain"
	"github.com/rationly/rationbot/internal/content"
	"github.com/rationly/rationbot/internal/domain"
	"github.com/rationly/rationbot/internal/funnel"
)

// Handlers bundles the admin API endpoints.
type Handlers struct {
	broadcasts *broadcast.Store
	chains     *chain.Store
	content    *content.Store
	engine     *chain.Engine
	funnel     *funnel.Store
}

// NewHandlers creates the endpoint set.
func NewHandlers(db *sql.DB, engine *chain.Engine) *Handlers {
	return &Handlers{
		broadcasts: broadcast.NewStore(db),
		chains:     chain.NewStore(db),
		content:    content.NewStore(db),
		engine:     engine,
		funnel:     funnel.NewStore(db),
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[API] encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetFunnelStats returns the funnel bucket counts and conversion.
func (h *Handlers) GetFunnelStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.funnel.FunnelCounts(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to compute funnel stats")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"counts":             counts,
		"conversion_percent": counts.ConversionPercent(),
	})
}

// =============================================================================
// Auto-broadcast rules
// =============================================================================

type ruleRequest struct {
	Trigger    domain.TriggerType `json:"trigger"`
	Content    string             `json:"content"`
	DelayHours int                `json:"delay_hours"`
	IsActive   bool               `json:"is_active"`
}

func (req *ruleRequest) validate() error {
	if !req.Trigger.Valid() {
		return fmt.Errorf("unknown trigger %q", req.Trigger)
	}
	if req.Content == "" {
		return fmt.Errorf("content is required")
	}
	if req.DelayHours < 0 {
		return fmt.Errorf("delay_hours must not be negative")
	}
	return nil
}

// ListRules returns all auto-broadcast rules.
func (h *Handlers) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.broadcasts.ListRules(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules")
		return
	}
	respondJSON(w, http.StatusOK, rules)
}

// CreateRule creates an auto-broadcast rule.
func (h *Handlers) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rule := &domain.AutoBroadcastRule{
		Trigger:    req.Trigger,
		Content:    req.Content,
		DelayHours: req.DelayHours,
		IsActive:   req.IsActive,
	}
	if err := h.broadcasts.CreateRule(r.Context(), rule); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create rule")
		return
	}
	respondJSON(w, http.StatusCreated, rule)
}

// UpdateRule rewrites an existing rule.
func (h *Handlers) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "ruleID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule id")
		return
	}
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rule := &domain.AutoBroadcastRule{
		ID:         id,
		Trigger:    req.Trigger,
		Content:    req.Content,
		DelayHours: req.DelayHours,
		IsActive:   req.IsActive,
	}
	if err := h.broadcasts.UpdateRule(r.Context(), rule); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update rule")
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

// DeleteRule removes a rule and its ledger rows.
func (h *Handlers) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "ruleID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule id")
		return
	}
	if err := h.broadcasts.DeleteRule(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete rule")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// One-shot broadcasts
// =============================================================================

type broadcastRequest struct {
	Content     string          `json:"content"`
	Audience    domain.Audience `json:"audience"`
	ScheduledAt time.Time       `json:"scheduled_at"`
}

// ListBroadcasts returns all broadcasts.
func (h *Handlers) ListBroadcasts(w http.ResponseWriter, r *http.Request) {
	list, err := h.broadcasts.ListBroadcasts(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list broadcasts")
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// CreateBroadcast schedules a one-shot broadcast.
func (h *Handlers) CreateBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Content == "" {
		respondError(w, http.StatusBadRequest, "content is required")
		return
	}
	if !req.Audience.Valid() {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown audience %q", req.Audience))
		return
	}
	if req.ScheduledAt.IsZero() {
		req.ScheduledAt = time.Now()
	}

	b := &domain.Broadcast{
		Content:     req.Content,
		Audience:    req.Audience,
		ScheduledAt: req.ScheduledAt,
	}
	if err := h.broadcasts.CreateBroadcast(r.Context(), b); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create broadcast")
		return
	}
	respondJSON(w, http.StatusCreated, b)
}

// CancelBroadcast cancels a broadcast that has not started sending.
func (h *Handlers) CancelBroadcast(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "broadcastID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid broadcast id")
		return
	}
	ok, err := h.broadcasts.CancelBroadcast(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to cancel broadcast")
		return
	}
	if !ok {
		respondError(w, http.StatusConflict, "broadcast already started or finished")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
