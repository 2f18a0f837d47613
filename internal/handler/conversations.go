package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/field-ops-assistant/internal/middleware"
	"github.com/capitalize-ai/field-ops-assistant/internal/model"
	"github.com/capitalize-ai/field-ops-assistant/internal/state"
	"github.com/capitalize-ai/field-ops-assistant/pkg/logger"
)

// StateInspector exposes the live conversation state.
type StateInspector interface {
	State(ctx context.Context, conversationID string) (*model.ConversationState, error)
	Reset(ctx context.Context, conversationID string) error
}

// ConversationHandler handles conversation state endpoints.
type ConversationHandler struct {
	states StateInspector
	logger *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(states StateInspector, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		states: states,
		logger: log,
	}
}

// State handles GET /api/v1/conversations/:id/state
func (h *ConversationHandler) State(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	st, err := h.states.State(r.Context(), conversationID)
	if errors.Is(err, state.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no pending state")
		return
	}
	if err != nil {
		h.logger.Error("Failed to read conversation state", zap.String("conversation_id", conversationID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read state")
		return
	}

	writeJSON(w, http.StatusOK, st)
}

// Reset handles DELETE /api/v1/conversations/:id/state
func (h *ConversationHandler) Reset(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.states.Reset(r.Context(), conversationID); err != nil {
		h.logger.Error("Failed to reset conversation state", zap.String("conversation_id", conversationID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to reset state")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
