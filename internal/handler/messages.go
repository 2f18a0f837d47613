// Package handler provides HTTP handlers for the API.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/field-ops-assistant/internal/middleware"
	"github.com/capitalize-ai/field-ops-assistant/internal/model"
	"github.com/capitalize-ai/field-ops-assistant/internal/service"
	"github.com/capitalize-ai/field-ops-assistant/pkg/logger"
)

// EventPipeline consumes inbound chat events.
type EventPipeline interface {
	HandleMessage(ctx context.Context, msg model.InboundMessage) (*model.HandleResponse, error)
	HandleAction(ctx context.Context, act model.InboundAction) (*model.HandleResponse, error)
}

// EventHandler receives messages and button clicks from the transport adapter.
type EventHandler struct {
	pipeline EventPipeline
	logger   *logger.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler(pipeline EventPipeline, log *logger.Logger) *EventHandler {
	return &EventHandler{
		pipeline: pipeline,
		logger:   log,
	}
}

// Message handles POST /api/v1/events/message
func (h *EventHandler) Message(w http.ResponseWriter, r *http.Request) {
	var req model.HandleMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateRequest(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateMessageContent(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.pipeline.HandleMessage(r.Context(), model.InboundMessage{
		EventID:        req.EventID,
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		SenderName:     req.SenderName,
		Text:           req.Text,
		ReceivedAt:     time.Now().UTC(),
	})
	h.respond(w, r, resp, err)
}

// Action handles POST /api/v1/events/action
func (h *EventHandler) Action(w http.ResponseWriter, r *http.Request) {
	var req model.HandleActionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateRequest(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.pipeline.HandleAction(r.Context(), model.InboundAction{
		EventID:        req.EventID,
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		Action:         model.ActionKind(req.Action),
		Revision:       req.Revision,
	})
	h.respond(w, r, resp, err)
}

func (h *EventHandler) respond(w http.ResponseWriter, r *http.Request, resp *model.HandleResponse, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidEvent):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		h.logger.Error("Failed to handle event",
			zap.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to handle event")
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}
