package model

// ExtraOperation is a dependent operation extracted from a composite message.
type ExtraOperation struct {
	Operation Operation `json:"operation"`
	Data      Data      `json:"data,omitempty"`
}

// ParsedIntent is the parser output for one turn.
type ParsedIntent struct {
	Operation       Operation        `json:"operation"`
	Data            Data             `json:"data"`
	MissingFields   []string         `json:"missing_fields,omitempty"`
	Error           string           `json:"error,omitempty"`
	Warnings        []string         `json:"warnings,omitempty"`
	Language        Language         `json:"language,omitempty"`
	Message         string           `json:"message,omitempty"`
	ExtraOperations []ExtraOperation `json:"extra_operations,omitempty"`
}

// HasWarning reports whether tag was raised.
func (p *ParsedIntent) HasWarning(tag string) bool {
	for _, w := range p.Warnings {
		if w == tag {
			return true
		}
	}
	return false
}

// Parser error kinds.
const (
	ParseErrorFutureDate = "future_date"
	ParseErrorJSON       = "json_parse_failure"
)
