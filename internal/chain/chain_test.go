package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/field-ops-assistant/internal/model"
)

func TestBuild_AppendsPlaceholders(t *testing.T) {
	c := Build(model.OpCreateSite, model.Data{"customer": "Migros", "facility_type": "Food"}, []model.ExtraOperation{
		{Operation: model.OpLogSupport, Data: model.Data{"received_date": "2026-01-05"}},
	})
	require.NotNil(t, c)

	assert.Equal(t, 4, c.TotalSteps)
	assert.Equal(t, 1, c.CurrentStep)
	assert.Equal(t, []model.Operation{
		model.OpCreateSite,
		model.OpLogSupport,
		model.OpUpdateHardware,
		model.OpUpdateImplementation,
	}, c.Operations())
	assert.Empty(t, c.Steps[2].Data)
	assert.Equal(t, "Food", c.Category)

	roadmap := Roadmap(c, model.LangTR)
	assert.Equal(t, "Müşteri kaydı oluşturuyorum. Sırayla:\n1. saha\n2. destek kaydı\n3. donanım\n4. ayarlar\nHer adımda onaylayabilir veya atlayabilirsiniz.", roadmap)
}

func TestBuild_NoDuplicatePlaceholders(t *testing.T) {
	c := Build(model.OpCreateSite, model.Data{}, []model.ExtraOperation{
		{Operation: model.OpUpdateHardware, Data: model.Data{"entries": []any{}}},
		{Operation: model.OpUpdateImplementation, Data: model.Data{"ssid": "x"}},
		{Operation: model.OpLogSupport, Data: model.Data{}},
		{Operation: model.OpUpdateHardware},
		{Operation: model.OpQuery},
	})
	require.NotNil(t, c)
	assert.Equal(t, []model.Operation{
		model.OpCreateSite,
		model.OpUpdateHardware,
		model.OpUpdateImplementation,
		model.OpLogSupport,
	}, c.Operations())
}

func TestBuild_NotComposite(t *testing.T) {
	assert.Nil(t, Build(model.OpLogSupport, model.Data{}, nil))
	assert.Nil(t, Build(model.OpQuery, model.Data{}, nil))
	assert.NotNil(t, Build(model.OpLogSupport, model.Data{}, []model.ExtraOperation{{Operation: model.OpUpdateHardware}}))
}

func TestAdvanceAndSummary(t *testing.T) {
	c := Build(model.OpCreateSite, model.Data{"customer": "Migros"}, nil)
	require.Equal(t, 3, c.TotalSteps)

	c = Advance(c, Completed)
	Propagate(c, "MIG-TR-01", "Food")
	assert.Equal(t, 2, c.CurrentStep)
	assert.False(t, c.Finished())
	assert.Equal(t, &model.StepIndicator{Current: 2, Total: 3}, Indicator(c))

	data := StepData(c)
	assert.Equal(t, "MIG-TR-01", data.String("site_id"))
	assert.True(t, NeedsInput(c))

	c = Advance(c, Skipped)
	c = Advance(c, Completed)
	assert.True(t, c.Finished())
	assert.Nil(t, Indicator(c))

	assert.Equal(t, []model.Operation{model.OpCreateSite, model.OpUpdateImplementation}, c.Completed)
	assert.Equal(t, []model.Operation{model.OpUpdateHardware}, c.Skipped)
	assert.Equal(t, "`MIG-TR-01` tamamlandı: saha ✅, donanım ⏭️, ayarlar ✅", Summary(c, model.LangTR))
	assert.Equal(t, "`MIG-TR-01` done: site ✅, hardware ⏭️, settings ✅", Summary(c, model.LangEN))
}

func TestAdvance_DoesNotMutate(t *testing.T) {
	c := Build(model.OpCreateSite, model.Data{}, nil)
	next := Advance(c, Completed)

	assert.Equal(t, 1, c.CurrentStep)
	assert.Empty(t, c.Completed)
	assert.Equal(t, 2, next.CurrentStep)
}

func TestNeedsInput(t *testing.T) {
	c := Build(model.OpCreateSite, model.Data{}, []model.ExtraOperation{
		{Operation: model.OpUpdateImplementation, Data: model.Data{"ssid": "guest"}},
	})
	c = Advance(c, Completed)
	Propagate(c, "MIG-TR-01", "")

	assert.False(t, NeedsInput(c))
	assert.Equal(t, model.Data{"ssid": "guest", "site_id": "MIG-TR-01"}, StepData(c))
}

func TestExtract(t *testing.T) {
	data := model.Data{
		"customer": "Migros",
		"hardware": []any{
			map[string]any{"device_type": "Tag", "qty": float64(30)},
		},
		"implementation":   map[string]any{"ssid": "migros"},
		"last_visit_date":  "2026-02-01",
		"last_visit_notes": "kurulum",
	}

	clean, extra := Extract(data)

	assert.Equal(t, model.Data{"customer": "Migros"}, clean)
	require.Len(t, extra, 3)
	assert.Equal(t, model.OpUpdateHardware, extra[0].Operation)
	assert.Len(t, extra[0].Data.Entries("entries"), 1)
	assert.Equal(t, model.OpUpdateImplementation, extra[1].Operation)
	assert.Equal(t, "migros", extra[1].Data.String("ssid"))
	assert.Equal(t, model.OpLogSupport, extra[2].Operation)
	assert.Equal(t, "kurulum", extra[2].Data.String("issue_summary"))
	assert.Contains(t, data, "hardware", "input is not mutated")
}
