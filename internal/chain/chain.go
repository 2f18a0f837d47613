// Package chain plans and tracks multi-step wizards such as onboarding a new
// site together with its hardware, settings and first visit.
package chain

import (
	"fmt"
	"strings"

	"github.com/capitalize-ai/field-ops-assistant/internal/model"
)

// Outcome is how a step left the chain.
type Outcome int

const (
	Completed Outcome = iota + 1
	Skipped
)

// Build plans the steps for primary. Extracted operations follow the primary
// step in order, and the primary's placeholder steps are appended last with
// empty data. Returns nil when the intent is not composite.
func Build(primary model.Operation, primaryData model.Data, extracted []model.ExtraOperation) *model.ChainState {
	info, ok := primary.Info()
	if !ok {
		return nil
	}

	steps := []model.ChainStep{{Operation: primary, Data: primaryData.Clone()}}
	seen := map[model.Operation]bool{primary: true}

	for _, ex := range extracted {
		if !ex.Operation.IsWrite() || seen[ex.Operation] {
			continue
		}
		seen[ex.Operation] = true
		data := ex.Data
		if data == nil {
			data = model.Data{}
		}
		steps = append(steps, model.ChainStep{Operation: ex.Operation, Data: data.Clone()})
	}
	for _, op := range info.Placeholders {
		if seen[op] {
			continue
		}
		seen[op] = true
		steps = append(steps, model.ChainStep{Operation: op, Data: model.Data{}})
	}

	if len(steps) < 2 {
		return nil
	}
	return &model.ChainState{
		Steps:       steps,
		CurrentStep: 1,
		TotalSteps:  len(steps),
		Category:    primaryData.String(model.FieldFacilityType),
	}
}

// Advance returns a copy of c with the current step recorded under outcome and
// the cursor moved to the next step.
func Advance(c *model.ChainState, outcome Outcome) *model.ChainState {
	next := *c
	next.Steps = append([]model.ChainStep(nil), c.Steps...)
	next.Completed = append([]model.Operation(nil), c.Completed...)
	next.Skipped = append([]model.Operation(nil), c.Skipped...)

	if step, ok := c.Current(); ok {
		switch outcome {
		case Completed:
			next.Completed = append(next.Completed, step.Operation)
		case Skipped:
			next.Skipped = append(next.Skipped, step.Operation)
		}
	}
	next.CurrentStep++
	return &next
}

// Propagate records the entity created or targeted by a finished step so the
// following steps inherit it.
func Propagate(c *model.ChainState, entityID, category string) {
	if entityID != "" && c.EntityID == "" {
		c.EntityID = entityID
	}
	if category != "" && c.Category == "" {
		c.Category = category
	}
}

// StepData returns the current step's payload with the carried site id injected.
func StepData(c *model.ChainState) model.Data {
	step, ok := c.Current()
	if !ok {
		return model.Data{}
	}
	data := step.Data.Clone()
	if c.EntityID != "" {
		if info, ok := step.Operation.Info(); ok && info.EntityField != "" && !data.Has(info.EntityField) {
			data[info.EntityField] = c.EntityID
		}
	}
	return data
}

// NeedsInput reports whether the current step has nothing beyond the carried site id.
func NeedsInput(c *model.ChainState) bool {
	for k, v := range StepData(c) {
		if k == model.FieldSiteID || model.IsInternalKey(k) {
			continue
		}
		if !model.IsEmpty(v) {
			return false
		}
	}
	return true
}

// Indicator returns the "step n of N" marker for the current step.
func Indicator(c *model.ChainState) *model.StepIndicator {
	if c == nil || c.Finished() {
		return nil
	}
	return &model.StepIndicator{Current: c.CurrentStep, Total: c.TotalSteps}
}

var englishLabels = map[model.Operation]string{
	model.OpCreateSite:           "site",
	model.OpUpdateSite:           "site",
	model.OpUpdateHardware:       "hardware",
	model.OpUpdateImplementation: "settings",
	model.OpLogSupport:           "support log",
	model.OpUpdateSupport:        "support log",
	model.OpUpdateStock:          "stock",
}

// Label returns the short step name in lang.
func Label(op model.Operation, lang model.Language) string {
	if lang == model.LangEN {
		if l, ok := englishLabels[op]; ok {
			return l
		}
	}
	if info, ok := op.Info(); ok {
		return info.ChainLabel
	}
	return string(op)
}

// Roadmap lists every planned step.
func Roadmap(c *model.ChainState, lang model.Language) string {
	var b strings.Builder
	if lang == model.LangEN {
		b.WriteString("Creating the customer record. In order:\n")
	} else {
		b.WriteString("Müşteri kaydı oluşturuyorum. Sırayla:\n")
	}
	for i, step := range c.Steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, Label(step.Operation, lang))
	}
	if lang == model.LangEN {
		b.WriteString("You can confirm or skip each step.")
	} else {
		b.WriteString("Her adımda onaylayabilir veya atlayabilirsiniz.")
	}
	return b.String()
}

// Summary reports the outcome of every step once the chain is finished.
func Summary(c *model.ChainState, lang model.Language) string {
	parts := make([]string, 0, len(c.Steps))
	for _, step := range c.Steps {
		mark := "⏭️"
		if containsOp(c.Completed, step.Operation) {
			mark = "✅"
		}
		parts = append(parts, Label(step.Operation, lang)+" "+mark)
	}
	verb := "tamamlandı"
	if lang == model.LangEN {
		verb = "done"
	}
	entity := c.EntityID
	if entity == "" {
		entity = "?"
	}
	return fmt.Sprintf("`%s` %s: %s", entity, verb, strings.Join(parts, ", "))
}

func containsOp(list []model.Operation, op model.Operation) bool {
	for _, o := range list {
		if o == op {
			return true
		}
	}
	return false
}
