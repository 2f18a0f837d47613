package chain

import (
	"github.com/capitalize-ai/field-ops-assistant/internal/model"
)

// Keys under which a create_site payload may embed child records.
const (
	keyHardware       = "hardware"
	keyImplementation = "implementation"
	keyLastVisitDate  = "last_visit_date"
	keyLastVisitNotes = "last_visit_notes"
)

// Extract splits embedded child records out of a site payload. The returned
// payload no longer carries them; sub-operations come back in the order
// hardware, settings, support visit.
func Extract(data model.Data) (model.Data, []model.ExtraOperation) {
	clean := data.Clone()
	var extra []model.ExtraOperation

	if entries := data.Entries(keyHardware); len(entries) > 0 {
		list := make([]any, len(entries))
		for i, e := range entries {
			list[i] = map[string]any(e)
		}
		extra = append(extra, model.ExtraOperation{
			Operation: model.OpUpdateHardware,
			Data:      model.Data{model.FieldEntries: list},
		})
	}
	delete(clean, keyHardware)

	if impl, ok := data[keyImplementation].(map[string]any); ok && len(impl) > 0 {
		extra = append(extra, model.ExtraOperation{
			Operation: model.OpUpdateImplementation,
			Data:      model.Data(impl).Clone(),
		})
	}
	delete(clean, keyImplementation)

	if data.Has(keyLastVisitDate) {
		visit := model.Data{
			model.FieldReceivedDate: data[keyLastVisitDate],
			"type":                  "Visit",
		}
		if data.Has(keyLastVisitNotes) {
			visit["issue_summary"] = data[keyLastVisitNotes]
		}
		extra = append(extra, model.ExtraOperation{Operation: model.OpLogSupport, Data: visit})
	}
	delete(clean, keyLastVisitDate)
	delete(clean, keyLastVisitNotes)

	return clean, extra
}
