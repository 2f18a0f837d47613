// Package audit fans audit records out to every configured sink.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/field-ops-assistant/internal/model"
	"github.com/capitalize-ai/field-ops-assistant/pkg/logger"
	"github.com/capitalize-ai/field-ops-assistant/pkg/metrics"
)

// Sink accepts audit records.
type Sink interface {
	Record(ctx context.Context, rec model.AuditRecord) error
}

// Named pairs a sink with the label used in logs and metrics.
type Named struct {
	Name string
	Sink Sink
}

// Multi delivers each record to all sinks. Sink failures are logged and
// counted, never returned.
type Multi struct {
	sinks  []Named
	logger *logger.Logger
}

// NewMulti creates a fan-out over sinks.
func NewMulti(log *logger.Logger, sinks ...Named) *Multi {
	return &Multi{sinks: sinks, logger: log}
}

// Record implements Sink.
func (m *Multi) Record(ctx context.Context, rec model.AuditRecord) error {
	for _, s := range m.sinks {
		if err := s.Sink.Record(ctx, rec); err != nil {
			metrics.AuditSinkFailures.WithLabelValues(s.Name).Inc()
			m.logger.Error("Failed to deliver audit record",
				zap.String("sink", s.Name),
				zap.String("audit_id", rec.ID),
				zap.String("outcome", string(rec.Outcome)),
				zap.String("conversation_id", rec.ConversationID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// NewRecord stamps a record with a fresh id and the given time.
func NewRecord(now time.Time, user string, outcome model.AuditOutcome, collection model.Collection, entityID, summary, raw, conversationID string) model.AuditRecord {
	return model.AuditRecord{
		ID:             uuid.NewString(),
		Timestamp:      now.UTC(),
		User:           user,
		Outcome:        outcome,
		Collection:     collection,
		EntityID:       entityID,
		Summary:        summary,
		RawMessage:     raw,
		ConversationID: conversationID,
	}
}
