package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/field-ops-assistant/internal/model"
	"github.com/capitalize-ai/field-ops-assistant/pkg/logger"
)

// AuditReader replays recorded audit events.
type AuditReader interface {
	Recent(ctx context.Context, collection model.Collection, afterSequence uint64, limit int) ([]model.AuditRecord, uint64, error)
}

// AuditPage is one page of replayed audit events.
type AuditPage struct {
	Records      []model.AuditRecord `json:"records"`
	LastSequence uint64              `json:"last_sequence"`
}

// AuditHandler serves the audit replay endpoint.
type AuditHandler struct {
	reader AuditReader
	logger *logger.Logger
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(reader AuditReader, log *logger.Logger) *AuditHandler {
	return &AuditHandler{
		reader: reader,
		logger: log,
	}
}

// List handles GET /api/v1/audit
// Supports ?collection=, ?after_sequence=N and ?limit=N for paging.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, http.StatusServiceUnavailable, "audit stream disabled")
		return
	}

	collection := model.Collection(r.URL.Query().Get("collection"))
	afterSequence := queryUint(r, "after_sequence", 0)
	limit := queryInt(r, "limit", 50, 500)

	records, last, err := h.reader.Recent(r.Context(), collection, afterSequence, limit)
	if err != nil {
		h.logger.Error("Failed to replay audit events", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read audit events")
		return
	}
	if records == nil {
		records = []model.AuditRecord{}
	}
	if last == 0 {
		last = afterSequence
	}

	writeJSON(w, http.StatusOK, &AuditPage{Records: records, LastSequence: last})
}
