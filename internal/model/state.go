package model

import (
	"encoding/json"
	"time"
)

// Phase is the pipeline state of a conversation.
type Phase string

const (
	PhaseIdle                   Phase = "idle"
	PhaseAwaitingClarification  Phase = "awaiting_clarification"
	PhaseAwaitingMissingFields  Phase = "awaiting_missing_fields"
	PhaseAwaitingDisambiguation Phase = "awaiting_disambiguation"
	PhaseAwaitingWarningAck     Phase = "awaiting_warning_ack"
	PhaseAwaitingConfirmation   Phase = "awaiting_confirmation"
)

// Language is a supported conversation locale.
type Language string

const (
	LangTR Language = "tr"
	LangEN Language = "en"
)

// ParseLanguage normalizes a locale tag, falling back to def.
func ParseLanguage(s string, def Language) Language {
	switch Language(s) {
	case LangTR, LangEN:
		return Language(s)
	}
	return def
}

// Warning tags raised during validation.
const (
	WarningOldDate = "old_date"
)

// ConversationState is the per-conversation record driving the pipeline.
type ConversationState struct {
	ConversationID string      `json:"conversation_id"`
	Revision       string      `json:"revision"`
	Phase          Phase       `json:"phase"`
	Operation      Operation   `json:"operation"`
	Data           Data        `json:"data"`
	MissingFields  []string    `json:"missing_fields,omitempty"`
	InitiatingUser string      `json:"initiating_user"`
	SenderName     string      `json:"sender_name,omitempty"`
	History        []Turn      `json:"message_history,omitempty"`
	Language       Language    `json:"language"`
	Chain          *ChainState `json:"chain,omitempty"`
	PendingWarning string      `json:"pending_warning,omitempty"`

	// Candidates holds the site ids offered while awaiting disambiguation.
	Candidates []string `json:"candidates,omitempty"`

	// Category is the facility type of the target site, when known.
	Category string `json:"category,omitempty"`

	// AwaitingStepInput is set while an empty chain step waits for user input.
	AwaitingStepInput bool `json:"awaiting_step_input,omitempty"`

	RawMessage string    `json:"raw_message,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Blocked reports whether the state is waiting on information for its operation.
func (s *ConversationState) Blocked() bool {
	if s == nil {
		return false
	}
	return len(s.MissingFields) > 0 || s.AwaitingStepInput || s.Phase == PhaseAwaitingMissingFields
}

// Clone returns a deep copy of the state.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		cp := *s
		return &cp
	}
	var out ConversationState
	if err := json.Unmarshal(raw, &out); err != nil {
		cp := *s
		return &cp
	}
	return &out
}

// ChainStep is one planned operation of a chain.
type ChainStep struct {
	Operation Operation `json:"operation"`
	Data      Data      `json:"data,omitempty"`
}

// ChainState tracks progress through a multi-step wizard.
type ChainState struct {
	Steps       []ChainStep `json:"steps"`
	CurrentStep int         `json:"current_step"`
	TotalSteps  int         `json:"total_steps"`
	Completed   []Operation `json:"completed,omitempty"`
	Skipped     []Operation `json:"skipped,omitempty"`

	// EntityID and Category are carried from the primary step into later steps.
	EntityID string `json:"entity_id,omitempty"`
	Category string `json:"category,omitempty"`
}

// Operations returns the ordered step kinds.
func (c *ChainState) Operations() []Operation {
	ops := make([]Operation, len(c.Steps))
	for i, s := range c.Steps {
		ops[i] = s.Operation
	}
	return ops
}

// Finished reports whether every step has been completed or skipped.
func (c *ChainState) Finished() bool {
	return c == nil || c.CurrentStep > c.TotalSteps
}

// Current returns the active step.
func (c *ChainState) Current() (ChainStep, bool) {
	if c == nil || c.CurrentStep < 1 || c.CurrentStep > len(c.Steps) {
		return ChainStep{}, false
	}
	return c.Steps[c.CurrentStep-1], true
}
