package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one entry of the running parse history for a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// InboundMessage is a plain-text message delivered by the messaging transport.
type InboundMessage struct {
	// Identity
	EventID        string `json:"event_id"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	SenderName     string `json:"sender_name,omitempty"`

	// Content
	Text string `json:"text"`

	ReceivedAt time.Time `json:"received_at,omitempty"`
}

// ActionKind identifies an interactive button action.
type ActionKind string

const (
	ActionConfirm ActionKind = "confirm"
	ActionCancel  ActionKind = "cancel"
	ActionSkip    ActionKind = "skip"
)

// InboundAction is a button click delivered by the messaging transport.
type InboundAction struct {
	EventID        string     `json:"event_id"`
	ConversationID string     `json:"conversation_id"`
	UserID         string     `json:"user_id"`
	Action         ActionKind `json:"action"`

	// Revision is the state revision the button was rendered for. Empty matches any revision.
	Revision string `json:"revision,omitempty"`
}

// HandleMessageRequest is the webhook body for an inbound message.
type HandleMessageRequest struct {
	EventID        string `json:"event_id" validate:"max=128"`
	ConversationID string `json:"conversation_id" validate:"required,max=128"`
	UserID         string `json:"user_id" validate:"required,max=128"`
	SenderName     string `json:"sender_name,omitempty" validate:"max=256"`
	Text           string `json:"text"`
}

// HandleActionRequest is the webhook body for a button click.
type HandleActionRequest struct {
	EventID        string `json:"event_id" validate:"max=128"`
	ConversationID string `json:"conversation_id" validate:"required,max=128"`
	UserID         string `json:"user_id" validate:"required,max=128"`
	Action         string `json:"action" validate:"required,oneof=confirm cancel skip"`
	Revision       string `json:"revision,omitempty" validate:"max=64"`
}

// HandleResponse carries the replies produced for one inbound event.
type HandleResponse struct {
	Duplicate bool    `json:"duplicate,omitempty"`
	Replies   []Reply `json:"replies"`
}
