package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/capitalize-ai/field-ops-assistant/internal/model"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name     string
		prev     *model.ConversationState
		intent   model.ParsedIntent
		wantOp   model.Operation
		wantData model.Data
		wantRule Rule
	}{
		{
			name:     "no previous state",
			prev:     nil,
			intent:   model.ParsedIntent{Operation: model.OpLogSupport, Data: model.Data{"site_id": "ASM-TR-01"}},
			wantOp:   model.OpLogSupport,
			wantData: model.Data{"site_id": "ASM-TR-01"},
			wantRule: RuleFresh,
		},
		{
			name: "empty value never overwrites",
			prev: &model.ConversationState{
				Operation: model.OpLogSupport,
				Phase:     model.PhaseAwaitingMissingFields,
				Data:      model.Data{"a": "1", "b": "2"},
			},
			intent:   model.ParsedIntent{Operation: model.OpLogSupport, Data: model.Data{"b": "", "c": "3"}},
			wantOp:   model.OpLogSupport,
			wantData: model.Data{"a": "1", "b": "2", "c": "3"},
			wantRule: RuleSameOperation,
		},
		{
			name: "after query only identifiers are inherited",
			prev: &model.ConversationState{
				Operation: model.OpQuery,
				Data:      model.Data{"site_id": "MIG-TR-01", "query_type": "stock"},
			},
			intent:   model.ParsedIntent{Operation: model.OpLogSupport, Data: model.Data{"status": "Open"}},
			wantOp:   model.OpLogSupport,
			wantData: model.Data{"site_id": "MIG-TR-01", "status": "Open"},
			wantRule: RuleFresh,
		},
		{
			name: "explicit identifier wins after query",
			prev: &model.ConversationState{
				Operation: model.OpClarify,
				Data:      model.Data{"site_id": "MIG-TR-01"},
			},
			intent:   model.ParsedIntent{Operation: model.OpUpdateSite, Data: model.Data{"site_id": "ASM-TR-01"}},
			wantOp:   model.OpUpdateSite,
			wantData: model.Data{"site_id": "ASM-TR-01"},
			wantRule: RuleFresh,
		},
		{
			name: "blocked operation is forced",
			prev: &model.ConversationState{
				Operation:     model.OpCreateSite,
				Phase:         model.PhaseAwaitingMissingFields,
				MissingFields: []string{"phone_1"},
				Data:          model.Data{"customer": "Migros"},
			},
			intent:   model.ParsedIntent{Operation: model.OpUpdateSite, Data: model.Data{"phone_1": "0555"}},
			wantOp:   model.OpCreateSite,
			wantData: model.Data{"customer": "Migros", "phone_1": "0555"},
			wantRule: RuleForcedContinuation,
		},
		{
			name: "awaiting chain input is forced",
			prev: &model.ConversationState{
				Operation:         model.OpUpdateHardware,
				AwaitingStepInput: true,
				Data:              model.Data{"site_id": "MIG-TR-01"},
			},
			intent:   model.ParsedIntent{Operation: model.OpUpdateStock, Data: model.Data{"device_type": "Tag", "qty": float64(5)}},
			wantOp:   model.OpUpdateHardware,
			wantData: model.Data{"site_id": "MIG-TR-01", "device_type": "Tag", "qty": float64(5)},
			wantRule: RuleForcedContinuation,
		},
		{
			name: "different operation without obligation discards",
			prev: &model.ConversationState{
				Operation: model.OpLogSupport,
				Phase:     model.PhaseAwaitingConfirmation,
				Data:      model.Data{"site_id": "ASM-TR-01", "status": "Open"},
			},
			intent:   model.ParsedIntent{Operation: model.OpUpdateStock, Data: model.Data{"location": "Adana Storage"}},
			wantOp:   model.OpUpdateStock,
			wantData: model.Data{"location": "Adana Storage"},
			wantRule: RuleDiscard,
		},
		{
			name: "internal keys are preserved",
			prev: &model.ConversationState{
				Operation: model.OpUpdateSupport,
				Phase:     model.PhaseAwaitingConfirmation,
				Data:      model.Data{"_row_index": float64(7), "ticket_id": "SUP-007"},
			},
			intent:   model.ParsedIntent{Operation: model.OpUpdateSupport, Data: model.Data{"_row_index": float64(1), "status": "Resolved"}},
			wantOp:   model.OpUpdateSupport,
			wantData: model.Data{"_row_index": float64(7), "ticket_id": "SUP-007", "status": "Resolved"},
			wantRule: RuleSameOperation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.prev, tt.intent)
			assert.Equal(t, tt.wantOp, got.Operation)
			assert.Equal(t, tt.wantData, got.Data)
			assert.Equal(t, tt.wantRule, got.Rule)
		})
	}
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	prev := &model.ConversationState{Operation: model.OpLogSupport, Data: model.Data{"a": "1"}}
	intent := model.ParsedIntent{Operation: model.OpLogSupport, Data: model.Data{"b": "2"}}

	Merge(prev, intent)

	assert.Equal(t, model.Data{"a": "1"}, prev.Data)
	assert.Equal(t, model.Data{"b": "2"}, intent.Data)
}
