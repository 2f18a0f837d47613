package llm

import (
	"fmt"
	"strings"
	"time"

	"github.com/capitalize-ai/field-ops-assistant/internal/model"
	"github.com/capitalize-ai/field-ops-assistant/internal/requirements"
)

var operationNotes = []struct {
	op   model.Operation
	note string
}{
	{model.OpLogSupport, "new support visit, call or remote session"},
	{model.OpUpdateSupport, "change an existing support ticket (resolution, status, root cause)"},
	{model.OpCreateSite, "register a new customer site; hardware, implementation and last visit details may be nested under hardware, implementation, last_visit_date, last_visit_notes"},
	{model.OpUpdateSite, "change contact, contract or address details of a site"},
	{model.OpUpdateHardware, "record devices installed at a site; several devices go into entries"},
	{model.OpUpdateImplementation, "network and hygiene settings of a site"},
	{model.OpUpdateStock, "warehouse stock movement"},
	{model.OpQuery, "read-only question; set query_type to site_summary, open_issues or stock"},
	{model.OpClarify, "the message is about field work but too vague to act on; put a short question in message"},
	{model.OpHelp, "the user asks what the assistant can do"},
	{model.OpNone, "small talk or unrelated text"},
}

// SystemPrompt renders the instructions sent with every parse request.
func SystemPrompt(engine *requirements.Engine, today time.Time) string {
	var b strings.Builder

	b.WriteString("You turn field operations chat messages into structured JSON.\n")
	b.WriteString("Messages are usually Turkish, sometimes English. Answer with one JSON object and nothing else.\n\n")
	fmt.Fprintf(&b, "Today is %s. Dates are YYYY-MM-DD. Resolve relative dates such as \"dün\" or \"yesterday\" against today.\n\n", today.Format("2006-01-02"))

	b.WriteString("Operations:\n")
	for _, n := range operationNotes {
		fmt.Fprintf(&b, "- %s: %s", n.op, n.note)
		if engine != nil {
			if fields := engine.Fields(n.op); len(fields) > 0 {
				fmt.Fprintf(&b, ". Fields: %s", strings.Join(fields, ", "))
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("\nAllowed values:\n")
	writeEnum(&b, "type", model.SupportTypes)
	writeEnum(&b, "status", model.SupportStatuses)
	writeEnum(&b, "facility_type", model.FacilityTypes)
	writeEnum(&b, "device_type", model.DeviceTypes)
	writeEnum(&b, "contract_status", model.ContractStatuses)
	writeEnum(&b, "location", model.StockLocations)
	writeEnum(&b, "condition", model.StockConditions)

	b.WriteString(`
Output format:
{"operation": "...", "data": {...}, "missing_fields": [...], "error": null, "warnings": [], "language": "tr|en", "message": null, "extra_operations": [{"operation": "...", "data": {...}}]}

Rules:
- Put only values the user actually gave into data. Never invent site ids.
- Refer to sites by the name the user typed in site_id when no id is given.
- If a date is after today, set error to "future_date".
- Use extra_operations when one message asks for several writes.
- Use the conversation history: a short answer usually fills fields of the previous operation.
`)
	return b.String()
}

func writeEnum(b *strings.Builder, field string, values []string) {
	fmt.Fprintf(b, "- %s: %s\n", field, strings.Join(values, " | "))
}

// UserMessage formats the current turn for the model.
func UserMessage(senderName, message, context string) string {
	var b strings.Builder
	if senderName != "" {
		fmt.Fprintf(&b, "Sender: %s\n", senderName)
	}
	if context != "" {
		fmt.Fprintf(&b, "Context: %s\n", context)
	}
	b.WriteString("Message: ")
	b.WriteString(message)
	return b.String()
}
