package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/capitalize-ai/field-ops-assistant/internal/textnorm"
)

// SiteIDPattern is the canonical site identifier format, e.g. ASM-TR-01.
var SiteIDPattern = regexp.MustCompile(`^[A-Z]{2,4}-[A-Z]{2}-\d{2}$`)

// CanonicalEntity is a resolvable site record.
type CanonicalEntity struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Aliases    []string `json:"aliases,omitempty"`
	Attributes Data     `json:"attributes,omitempty"`
}

// Category returns the facility type recorded for the entity.
func (e CanonicalEntity) Category() string {
	return e.Attributes.String(FieldFacilityType)
}

// ValidSiteID reports whether id matches the canonical format.
func ValidSiteID(id string) bool {
	return SiteIDPattern.MatchString(id)
}

var countryCodes = map[string]string{
	"turkey":       "TR",
	"turkiye":      "TR",
	"egypt":        "EG",
	"misir":        "EG",
	"saudi arabia": "SA",
	"uae":          "AE",
	"germany":      "DE",
	"almanya":      "DE",
	"brazil":       "BR",
	"brezilya":     "BR",
}

// CountryCode maps a country name or code to its two-letter code.
func CountryCode(country string) string {
	folded := textnorm.Fold(country)
	if code, ok := countryCodes[folded]; ok {
		return code
	}
	letters := textnorm.Letters(country)
	if len(letters) >= 2 {
		return letters[:2]
	}
	return "XX"
}

// SitePrefix derives the id prefix from a customer name: initials for
// multi-word names, the first three letters otherwise.
func SitePrefix(customer string) string {
	words := strings.Fields(textnorm.Fold(customer))
	var prefix string
	if len(words) >= 2 {
		for _, w := range words {
			if l := textnorm.Letters(w); l != "" {
				prefix += l[:1]
			}
			if len(prefix) == 4 {
				break
			}
		}
	}
	if len(prefix) < 2 {
		prefix = textnorm.Letters(customer)
		if len(prefix) > 3 {
			prefix = prefix[:3]
		}
	}
	for len(prefix) < 2 {
		prefix += "X"
	}
	return prefix
}

// NextSiteID returns the first free PREFIX-CC-NN id for the customer.
func NextSiteID(customer, country string, existing []string) string {
	base := SitePrefix(customer) + "-" + CountryCode(country) + "-"
	highest := 0
	for _, id := range existing {
		if !strings.HasPrefix(id, base) {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(id, base)); err == nil && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("%s%02d", base, highest+1)
}
