package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/application"
	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/contracts"
	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/domain"
)

type Handler struct {
	service *application.Service
	ready   func(ctx context.Context) error
}

func NewHandler(service *application.Service, ready func(ctx context.Context) error) *Handler {
	return &Handler{service: service, ready: ready}
}

func (h *Handler) createGeneration(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req contracts.CreateGenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid json body", actor.RequestID)
		return
	}

	messages := make([]domain.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, domain.Message{Role: m.Role, Content: m.Content})
	}
	task, err := h.service.StartGeneration(r.Context(), actor, application.StartGenerationInput{
		Spec: domain.GenerationSpec{
			Type:            strings.TrimSpace(req.Type),
			Prompt:          req.Prompt,
			Messages:        messages,
			Model:           req.Model,
			MaxTokens:       req.MaxTokens,
			DurationSeconds: req.DurationSeconds,
			Resolution:      req.Resolution,
			FrameRate:       req.FrameRate,
			Parameters:      req.Parameters,
		},
	})
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), actor.RequestID)
		return
	}
	status := http.StatusAccepted
	if task.IsTerminal() {
		status = http.StatusCreated
	}
	writeSuccess(w, status, "", task)
}

func (h *Handler) getTask(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	task, err := h.service.GetTaskStatus(r.Context(), chi.URLParam(r, "task_id"))
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), actor.RequestID)
		return
	}
	writeSuccess(w, http.StatusOK, "", task)
}

func (h *Handler) getTaskResult(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	task, err := h.service.GetTaskResult(r.Context(), chi.URLParam(r, "task_id"))
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), actor.RequestID)
		return
	}
	writeSuccess(w, http.StatusOK, "", task)
}

func (h *Handler) createSubscription(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req contracts.CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid json body", actor.RequestID)
		return
	}
	sub, err := h.service.CreateSubscription(r.Context(), req.URL, req.Secret, req.Events)
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), actor.RequestID)
		return
	}
	// The secret is write-only; it never appears in a response.
	sub.Secret = ""
	writeSuccess(w, http.StatusCreated, "", sub)
}

func (h *Handler) listDeliveries(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			limit = v
		}
	}
	items, err := h.service.ListDeliveries(r.Context(), chi.URLParam(r, "webhook_id"), limit)
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), actor.RequestID)
		return
	}
	writeSuccess(w, http.StatusOK, "", items)
}

func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			limit = v
		}
	}
	items, err := h.service.ListAlerts(r.Context(), limit)
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), actor.RequestID)
		return
	}
	writeSuccess(w, http.StatusOK, "", items)
}

func (h *Handler) getThresholds(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, "", h.service.Thresholds())
}

func (h *Handler) putThresholds(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req contracts.ThresholdsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid json body", actor.RequestID)
		return
	}
	if err := h.service.SetThresholds(actor, req.Thresholds); err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), actor.RequestID)
		return
	}
	writeSuccess(w, http.StatusOK, "", h.service.Thresholds())
}

func (h *Handler) createBlock(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req contracts.BlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid json body", actor.RequestID)
		return
	}
	identity := domain.Identity{
		Type:  strings.TrimSpace(req.IdentityType),
		Value: strings.TrimSpace(req.IdentityValue),
	}
	rec, err := h.service.Block(r.Context(), actor, identity, req.Severity, req.Reason)
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), actor.RequestID)
		return
	}
	writeSuccess(w, http.StatusCreated, "", rec)
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, "", map[string]string{"status": "ok"})
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "not_ready", err.Error(), requestIDFromContext(r.Context()))
			return
		}
	}
	writeSuccess(w, http.StatusOK, "", map[string]string{"status": "ready"})
}
