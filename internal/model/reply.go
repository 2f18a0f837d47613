package model

// ReplyKind identifies the payload shape sent back to the transport.
type ReplyKind string

const (
	// ReplyText is a plain text message.
	ReplyText ReplyKind = "text"
	// ReplyConfirmation is a field preview with confirm and cancel buttons.
	ReplyConfirmation ReplyKind = "confirmation"
	// ReplyPrompt is a preview with a single primary button.
	ReplyPrompt ReplyKind = "prompt"
)

// Button is an interactive action descriptor.
type Button struct {
	Action   ActionKind `json:"action"`
	Label    string     `json:"label"`
	Style    string     `json:"style,omitempty"`
	Revision string     `json:"revision,omitempty"`
}

// PreviewField is one labelled value of a preview.
type PreviewField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// StepIndicator marks the position of a preview inside a chain.
type StepIndicator struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Reply is a message produced by the pipeline for the transport to render.
type Reply struct {
	Kind    ReplyKind      `json:"kind"`
	Text    string         `json:"text,omitempty"`
	Title   string         `json:"title,omitempty"`
	Fields  []PreviewField `json:"fields,omitempty"`
	Buttons []Button       `json:"buttons,omitempty"`
	Step    *StepIndicator `json:"step,omitempty"`
}

// TextReply builds a plain text reply.
func TextReply(text string) Reply {
	return Reply{Kind: ReplyText, Text: text}
}
