package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rationly/rationbot/internal/domain"
)

// Chain authoring happens by step order: buttons reference their goto target
// by order number and the server resolves that to step ids. Broken goto
// references are rejected here, at authoring time, instead of surfacing as
// skipped transitions in front of a user.

type chainButtonRequest struct {
	Label       string              `json:"label"`
	Action      domain.ButtonAction `json:"action"`
	TargetOrder *int                `json:"target_order,omitempty"`
	URL         string              `json:"url,omitempty"`
	Command     string              `json:"command,omitempty"`
	Product     domain.Product      `json:"product,omitempty"`
}

type chainStepRequest struct {
	Order      int                  `json:"order"`
	Content    string               `json:"content"`
	DelayHours int                  `json:"delay_hours"`
	Buttons    []chainButtonRequest `json:"buttons,omitempty"`
}

type chainRequest struct {
	Name     string             `json:"name"`
	Trigger  domain.TriggerType `json:"trigger"`
	IsActive bool               `json:"is_active"`
	Steps    []chainStepRequest `json:"steps"`
}

func (req *chainRequest) validate() error {
	if req.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !req.Trigger.Valid() {
		return fmt.Errorf("unknown trigger %q", req.Trigger)
	}
	if len(req.Steps) == 0 {
		return fmt.Errorf("a chain needs at least one step")
	}

	orders := make(map[int]bool, len(req.Steps))
	for _, st := range req.Steps {
		if st.Content == "" {
			return fmt.Errorf("step %d has no content", st.Order)
		}
		if st.DelayHours < 0 {
			return fmt.Errorf("step %d has a negative delay", st.Order)
		}
		if orders[st.Order] {
			return fmt.Errorf("duplicate step order %d", st.Order)
		}
		orders[st.Order] = true
	}

	for _, st := range req.Steps {
		for _, btn := range st.Buttons {
			if btn.Label == "" {
				return fmt.Errorf("step %d has a button without a label", st.Order)
			}
			if !btn.Action.Valid() {
				return fmt.Errorf("step %d button %q has unknown action %q", st.Order, btn.Label, btn.Action)
			}
			switch btn.Action {
			case domain.ActionGoto:
				if btn.TargetOrder == nil {
					return fmt.Errorf("step %d button %q is a goto without a target", st.Order, btn.Label)
				}
				if !orders[*btn.TargetOrder] {
					return fmt.Errorf("step %d button %q targets non-existent step %d", st.Order, btn.Label, *btn.TargetOrder)
				}
			case domain.ActionOpenURL:
				if btn.URL == "" {
					return fmt.Errorf("step %d button %q has no url", st.Order, btn.Label)
				}
			case domain.ActionRunCommand:
				if btn.Command == "" {
					return fmt.Errorf("step %d button %q has no command", st.Order, btn.Label)
				}
			case domain.ActionTriggerPayment:
				if !btn.Product.Valid() {
					return fmt.Errorf("step %d button %q has unknown product %q", st.Order, btn.Label, btn.Product)
				}
			}
		}
	}
	return nil
}

// toDomain builds the chain with generated ids and goto targets resolved
// from step orders.
func (req *chainRequest) toDomain() *domain.Chain {
	c := &domain.Chain{
		ID:       uuid.New(),
		Name:     req.Name,
		Trigger:  req.Trigger,
		IsActive: req.IsActive,
	}

	idByOrder := make(map[int]uuid.UUID, len(req.Steps))
	for _, st := range req.Steps {
		idByOrder[st.Order] = uuid.New()
	}

	for _, st := range req.Steps {
		step := domain.ChainStep{
			ID:         idByOrder[st.Order],
			ChainID:    c.ID,
			Order:      st.Order,
			Content:    st.Content,
			DelayHours: st.DelayHours,
		}
		for i, btn := range st.Buttons {
			button := domain.ChainButton{
				ID:      uuid.New(),
				StepID:  step.ID,
				Label:   btn.Label,
				Action:  btn.Action,
				URL:     btn.URL,
				Command: btn.Command,
				Product: btn.Product,
				Order:   i,
			}
			if btn.Action == domain.ActionGoto && btn.TargetOrder != nil {
				target := idByOrder[*btn.TargetOrder]
				button.TargetStep = &target
			}
			step.Buttons = append(step.Buttons, button)
		}
		c.Steps = append(c.Steps, step)
	}
	return c
}

// ListChains returns chain headers.
func (h *Handlers) ListChains(w http.ResponseWriter, r *http.Request) {
	chains, err := h.chains.ListChains(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list chains")
		return
	}
	respondJSON(w, http.StatusOK, chains)
}

// CreateChain validates and persists a chain with its steps and buttons.
func (h *Handlers) CreateChain(w http.ResponseWriter, r *http.Request) {
	var req chainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	c := req.toDomain()
	if err := h.chains.CreateChain(r.Context(), c); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create chain")
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

// GetChain returns one chain with steps and buttons.
func (h *Handlers) GetChain(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "chainID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid chain id")
		return
	}
	c, err := h.chains.GetChain(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusNotFound, "chain not found")
		return
	}
	respondJSON(w, http.StatusOK, c)
}

type launchRequest struct {
	Audience domain.Audience `json:"audience"`
}

// LaunchChain starts a chain for an audience segment.
func (h *Handlers) LaunchChain(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "chainID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid chain id")
		return
	}
	var req launchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !req.Audience.Valid() {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown audience %q", req.Audience))
		return
	}

	launched, err := h.engine.Launch(r.Context(), id, req.Audience)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"launched": launched})
}

// SetChainActive returns a handler flipping the chain's active flag.
func (h *Handlers) SetChainActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "chainID"))
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid chain id")
			return
		}
		if err := h.chains.SetChainActive(r.Context(), id, active); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to update chain")
			return
		}
		respondJSON(w, http.StatusOK, map[string]bool{"is_active": active})
	}
}

// DeleteChain removes a chain with all its state.
func (h *Handlers) DeleteChain(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "chainID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid chain id")
		return
	}
	if err := h.chains.DeleteChain(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete chain")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
