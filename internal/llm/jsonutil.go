package llm

import (
	"regexp"
	"strings"
)

var (
	jsonBlockPattern  = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*?\\})\\s*\\n?```")
	jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)
	trailingComma     = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON pulls the first JSON object out of a model reply, tolerating
// code fences, surrounding prose and trailing commas.
func ExtractJSON(content string) string {
	content = strings.TrimSpace(content)
	if m := jsonBlockPattern.FindStringSubmatch(content); len(m) > 1 {
		return cleanJSON(m[1])
	}
	if m := jsonObjectPattern.FindString(content); m != "" {
		return cleanJSON(m)
	}
	return ""
}

func cleanJSON(s string) string {
	return trailingComma.ReplaceAllString(strings.TrimSpace(s), "$1")
}
