// Package merge folds a newly parsed intent into the accumulated conversation state.
package merge

import (
	"github.com/capitalize-ai/field-ops-assistant/internal/model"
)

// Rule identifies which merge rule produced a result.
type Rule int

const (
	// RuleFresh: no previous obligation; only identifying fields are inherited.
	RuleFresh Rule = iota + 1
	// RuleSameOperation: previous data overlaid with non-empty new values.
	RuleSameOperation
	// RuleForcedContinuation: a blocked operation keeps its kind despite a different parse.
	RuleForcedContinuation
	// RuleDiscard: a different operation replaces the previous state.
	RuleDiscard
)

// Result is the outcome of a merge.
type Result struct {
	Operation model.Operation
	Data      model.Data
	Rule      Rule
}

// Merge combines prev with intent. prev may be nil.
func Merge(prev *model.ConversationState, intent model.ParsedIntent) Result {
	newData := intent.Data
	if newData == nil {
		newData = model.Data{}
	}

	if prev == nil || prev.Operation.IsPassive() {
		data := newData.Clone()
		if prev != nil {
			for _, f := range model.IdentifyingFields {
				if !data.Has(f) && prev.Data.Has(f) {
					data[f] = prev.Data[f]
				}
			}
		}
		return Result{Operation: intent.Operation, Data: data, Rule: RuleFresh}
	}

	if intent.Operation == prev.Operation {
		return Result{Operation: prev.Operation, Data: Overlay(prev.Data, newData), Rule: RuleSameOperation}
	}

	if prev.Blocked() || prev.Phase == model.PhaseAwaitingClarification {
		return Result{Operation: prev.Operation, Data: Overlay(prev.Data, newData), Rule: RuleForcedContinuation}
	}

	return Result{Operation: intent.Operation, Data: newData.Clone(), Rule: RuleDiscard}
}

// Overlay copies base and writes every non-empty value of update over it.
// Internal keys of base survive; internal keys of update are ignored.
func Overlay(base, update model.Data) model.Data {
	out := base.Clone()
	for k, v := range update {
		if model.IsInternalKey(k) || model.IsEmpty(v) {
			continue
		}
		out[k] = v
	}
	return out
}
