package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/field-ops-assistant/internal/model"
	"github.com/capitalize-ai/field-ops-assistant/pkg/metrics"
)

const (
	// StreamName is the name of the audit stream.
	StreamName = "OPS_AUDIT"

	// SubjectPrefix is the prefix for all audit subjects.
	SubjectPrefix = "ops.audit"
)

// AuditStream publishes audit records to JetStream.
type AuditStream struct {
	client *Client
}

// NewAuditStream creates a new audit stream publisher.
func NewAuditStream(client *Client) *AuditStream {
	return &AuditStream{client: client}
}

// EnsureStream ensures the audit stream exists with proper configuration.
func (m *AuditStream) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      365 * 24 * time.Hour, // 1 year
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "Outcomes of confirmed, cancelled and failed writes",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// AuditSubject returns the subject for an audit record, e.g.
// ops.audit.support_log.create.
func AuditSubject(collection model.Collection, outcome model.AuditOutcome) string {
	c := collection.Table()
	if c == "" {
		c = "unknown"
	}
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, c, strings.ToLower(string(outcome)))
}

// Publish publishes an audit record and returns its stream sequence.
func (m *AuditStream) Publish(ctx context.Context, rec model.AuditRecord) (uint64, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal audit record: %w", err)
	}

	ack, err := m.client.JetStream().Publish(ctx, AuditSubject(rec.Collection, rec.Outcome), data,
		jetstream.WithMsgID(rec.ID))
	if err != nil {
		return 0, fmt.Errorf("failed to publish audit record: %w", err)
	}

	return ack.Sequence, nil
}

// Record implements audit.Sink.
func (m *AuditStream) Record(ctx context.Context, rec model.AuditRecord) error {
	_, err := m.Publish(ctx, rec)
	return err
}

// RefreshMetrics exports the current stream size.
func (m *AuditStream) RefreshMetrics(ctx context.Context) error {
	stream, err := m.client.JetStream().Stream(ctx, StreamName)
	if err != nil {
		return err
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return err
	}
	metrics.RecordStreamInfo(StreamName, info.State.Msgs, info.State.Bytes)
	return nil
}

// Recent returns up to limit audit records after a sequence, optionally
// restricted to one collection, together with the last sequence read.
func (m *AuditStream) Recent(ctx context.Context, collection model.Collection, afterSequence uint64, limit int) ([]model.AuditRecord, uint64, error) {
	filter := SubjectPrefix + ".>"
	if collection != "" {
		filter = fmt.Sprintf("%s.%s.>", SubjectPrefix, collection.Table())
	}

	cfg := jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{filter},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	}
	if afterSequence > 0 {
		cfg.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		cfg.OptStartSeq = afterSequence + 1
	}

	consumer, err := m.client.JetStream().OrderedConsumer(ctx, StreamName, cfg)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch audit records: %w", err)
	}

	var (
		records      []model.AuditRecord
		lastSequence uint64
	)
	for msg := range batch.Messages() {
		var rec model.AuditRecord
		if err := json.Unmarshal(msg.Data(), &rec); err != nil {
			continue
		}
		if meta, err := msg.Metadata(); err == nil {
			lastSequence = meta.Sequence.Stream
		}
		records = append(records, rec)
	}

	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, jetstream.ErrNoMessages) {
		return nil, 0, fmt.Errorf("batch error: %w", err)
	}

	return records, lastSequence, nil
}
