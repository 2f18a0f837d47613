package requirements

import (
	"errors"
	"strings"
	"time"

	"github.com/capitalize-ai/field-ops-assistant/internal/model"
)

// DefaultStaleAfter is the age after which a received date needs acknowledgement.
const DefaultStaleAfter = 90 * 24 * time.Hour

var (
	// ErrFutureDate is returned when a reported date lies after today.
	ErrFutureDate = errors.New("date is in the future")

	// ErrResolvedBeforeReceived is returned when a ticket is closed before it was opened.
	ErrResolvedBeforeReceived = errors.New("resolved date is before received date")
)

const isoDate = "2006-01-02"

var dateLayouts = []string{isoDate, "02.01.2006", "02/01/2006", "2006/01/02"}

var dateFields = []string{model.FieldReceivedDate, model.FieldResolvedDate, "go_live_date"}

// ParseDate accepts the date layouts users and the parser commonly produce.
func ParseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeDates rewrites the date fields of data to YYYY-MM-DD in place.
// Values in no known layout are left for record validation to reject.
func NormalizeDates(data model.Data) {
	for _, f := range dateFields {
		raw := strings.TrimSpace(data.String(f))
		if raw == "" {
			continue
		}
		if t, ok := ParseDate(raw); ok {
			data[f] = t.Format(isoDate)
		}
	}
}

// CheckDates validates the event dates of a payload relative to now. Hard
// violations are returned as errors; soft ones as warning tags.
func CheckDates(data model.Data, now time.Time, staleAfter time.Duration) ([]string, error) {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	received, hasReceived := ParseDate(data.String(model.FieldReceivedDate))
	resolved, hasResolved := ParseDate(data.String(model.FieldResolvedDate))

	if hasReceived && received.After(today) {
		return nil, ErrFutureDate
	}
	if hasResolved && resolved.After(today) {
		return nil, ErrFutureDate
	}
	if hasReceived && hasResolved && resolved.Before(received) {
		return nil, ErrResolvedBeforeReceived
	}

	var warnings []string
	if hasReceived && today.Sub(received) > staleAfter {
		warnings = append(warnings, model.WarningOldDate)
	}
	return warnings, nil
}
