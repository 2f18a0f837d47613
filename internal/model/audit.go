package model

import (
	"time"
)

// AuditOutcome classifies an attempted write.
type AuditOutcome string

const (
	AuditCreate    AuditOutcome = "CREATE"
	AuditUpdate    AuditOutcome = "UPDATE"
	AuditFailed    AuditOutcome = "FAILED"
	AuditCancelled AuditOutcome = "CANCELLED"
)

// AuditRecord is an immutable entry describing the outcome of a confirmation.
type AuditRecord struct {
	ID             string       `json:"id"`
	Timestamp      time.Time    `json:"timestamp"`
	User           string       `json:"user"`
	Outcome        AuditOutcome `json:"outcome"`
	Collection     Collection   `json:"target_collection"`
	EntityID       string       `json:"entity_id"`
	Summary        string       `json:"summary"`
	RawMessage     string       `json:"raw_message"`
	ConversationID string       `json:"conversation_id,omitempty"`
}

// WriteResult describes a successful write.
type WriteResult struct {
	Collection Collection `json:"collection"`
	EntityID   string     `json:"entity_id"`
	RecordKey  string     `json:"record_key"`
	Rows       int        `json:"rows"`
}
