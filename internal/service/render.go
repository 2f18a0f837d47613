package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/capitalize-ai/field-ops-assistant/internal/chain"
	"github.com/capitalize-ai/field-ops-assistant/internal/model"
	"github.com/capitalize-ai/field-ops-assistant/internal/requirements"
)

// preview renders the confirmation card for a complete operation.
func (p *Pipeline) preview(st *model.ConversationState, important []string) model.Reply {
	lang := st.Language
	r := model.Reply{
		Kind:   model.ReplyConfirmation,
		Title:  say(lang, msgConfirmTitle, operationTitle(st.Operation, lang)),
		Fields: p.previewFields(st.Operation, st.Data),
		Step:   chain.Indicator(st.Chain),
		Buttons: []model.Button{
			{Action: model.ActionConfirm, Label: say(lang, msgButtonConfirm), Style: "primary", Revision: st.Revision},
			{Action: model.ActionCancel, Label: say(lang, msgButtonCancel), Style: "danger", Revision: st.Revision},
		},
	}
	if skippable(st) {
		r.Buttons = append(r.Buttons, model.Button{Action: model.ActionSkip, Label: say(lang, msgButtonSkip), Revision: st.Revision})
	}
	if len(important) > 0 {
		r.Text = say(lang, msgSuggestions, labels(important))
	}
	return r
}

// skippable reports whether the current step is a dependent chain step.
func skippable(st *model.ConversationState) bool {
	return st.Chain != nil && !st.Chain.Finished() && st.Chain.CurrentStep > 1
}

// previewFields lists the non-empty public fields, table order first.
func (p *Pipeline) previewFields(op model.Operation, data model.Data) []model.PreviewField {
	var keys []string
	seen := map[string]bool{}
	for _, f := range p.deps.Requirements.Fields(op) {
		if data.Has(f) {
			keys = append(keys, f)
			seen[f] = true
		}
	}
	var rest []string
	for k, v := range data {
		if seen[k] || model.IsInternalKey(k) || model.IsEmpty(v) {
			continue
		}
		rest = append(rest, k)
	}
	sort.Strings(rest)
	keys = append(keys, rest...)

	fields := make([]model.PreviewField, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, model.PreviewField{Label: fieldLabel(k), Value: formatValue(data, k)})
	}
	return fields
}

// formatValue renders one field for display. Entry lists become
// "Tag ×25 (HW 2.1), Gateway ×2".
func formatValue(data model.Data, key string) string {
	if key != model.FieldEntries {
		if list, ok := data[key].([]any); ok {
			parts := make([]string, 0, len(list))
			for _, v := range list {
				parts = append(parts, fmt.Sprint(v))
			}
			return strings.Join(parts, ", ")
		}
		return data.String(key)
	}
	entries := data.Entries(key)
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		s := e.String(model.FieldDeviceType)
		if q := e.String("qty"); q != "" {
			s += " ×" + q
		}
		var versions []string
		if hw := e.String("hw_version"); hw != "" {
			versions = append(versions, "HW "+hw)
		}
		if fw := e.String("fw_version"); fw != "" {
			versions = append(versions, "FW "+fw)
		}
		if len(versions) > 0 {
			s += " (" + strings.Join(versions, ", ") + ")"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}

// missingPrompt asks for every blocking field and suggests the important ones.
func missingPrompt(st *model.ConversationState, verdict requirements.Result) model.Reply {
	lang := st.Language
	var b strings.Builder
	b.WriteString(say(lang, msgMissingHeader))
	for _, f := range verdict.Must {
		b.WriteString("\n• ")
		b.WriteString(fieldQuestion(f, lang))
	}
	if len(verdict.Important) > 0 {
		b.WriteString("\n\n")
		b.WriteString(say(lang, msgSuggestions, labels(verdict.Important)))
	}
	return model.Reply{Kind: model.ReplyText, Text: b.String(), Step: chain.Indicator(st.Chain)}
}

func invalidPrompt(st *model.ConversationState, fields []string) model.Reply {
	lang := st.Language
	var b strings.Builder
	b.WriteString(say(lang, msgInvalidFields, labels(fields)))
	for _, f := range fields {
		b.WriteString("\n• ")
		b.WriteString(fieldQuestion(f, lang))
	}
	return model.Reply{Kind: model.ReplyText, Text: b.String(), Step: chain.Indicator(st.Chain)}
}

// stepPrompt invites input for an empty chain step.
func (p *Pipeline) stepPrompt(st *model.ConversationState) model.Reply {
	lang := st.Language
	var b strings.Builder
	b.WriteString(say(lang, msgStepInput, chain.Label(st.Operation, lang)))
	verdict := p.deps.Requirements.Evaluate(st.Operation, st.Data, st.Category)
	for _, f := range verdict.Must {
		b.WriteString("\n• ")
		b.WriteString(fieldQuestion(f, lang))
	}
	return model.Reply{
		Kind:  model.ReplyPrompt,
		Title: operationTitle(st.Operation, lang),
		Text:  b.String(),
		Step:  chain.Indicator(st.Chain),
		Buttons: []model.Button{
			{Action: model.ActionSkip, Label: say(lang, msgButtonSkip), Revision: st.Revision},
		},
	}
}

// candidatesPrompt lists the matching sites as a numbered choice.
func candidatesPrompt(lang model.Language, candidates []model.CanonicalEntity) model.Reply {
	var b strings.Builder
	b.WriteString(say(lang, msgDisambiguation))
	for i, c := range candidates {
		fmt.Fprintf(&b, "\n%d. %s (`%s`)", i+1, c.Name, c.ID)
	}
	return model.TextReply(b.String())
}

func labels(fields []string) string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = fieldLabel(f)
	}
	return strings.Join(out, ", ")
}
