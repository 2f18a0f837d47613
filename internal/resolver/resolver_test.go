package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/field-ops-assistant/internal/model"
)

func ids(entities []model.CanonicalEntity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.ID
	}
	return out
}

func testSites() []model.CanonicalEntity {
	return []model.CanonicalEntity{
		{ID: "ASM-TR-01", Name: "Anadolu Sağlık Merkezi"},
		{ID: "MIG-TR-01", Name: "Migros"},
		{ID: "MCD-EG-01", Name: "McDonald's Cairo"},
		{ID: "EST-TR-01", Name: "Este Nove"},
		{ID: "EST-BR-09", Name: "Este Nove Test"},
	}
}

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	aliases, err := DefaultAliases()
	require.NoError(t, err)
	return New(aliases)
}

func TestResolve(t *testing.T) {
	r := newTestResolver(t)
	sites := testSites()

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"exact id", "MIG-TR-01", []string{"MIG-TR-01"}},
		{"exact id case insensitive", "asm-tr-01", []string{"ASM-TR-01"}},
		{"exact name wins over longer name", "este nove", []string{"EST-TR-01"}},
		{"exact name ignores diacritics", "anadolu saglik merkezi", []string{"ASM-TR-01"}},
		{"curated alias", "Mek", []string{"MCD-EG-01"}},
		{"curated alias with accents", "anadolu sağlık", []string{"ASM-TR-01"}},
		{"derived prefix alias", "mig", []string{"MIG-TR-01"}},
		{"derived prefix shared by two sites", "EST", []string{"EST-TR-01", "EST-BR-09"}},
		{"fuzzy typo", "migrso", []string{"MIG-TR-01"}},
		{"fuzzy substring of name", "mcdonald", []string{"MCD-EG-01"}},
		{"no match", "carrefour", nil},
		{"empty query", "", nil},
		{"whitespace query", "   ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve(tt.query, sites)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestResolve_IdenticalNamesAreAmbiguous(t *testing.T) {
	r := New(nil)
	sites := []model.CanonicalEntity{
		{ID: "KFC-TR-01", Name: "KFC Kadıköy"},
		{ID: "KFC-TR-02", Name: "KFC Kadıköy"},
		{ID: "BUR-TR-01", Name: "Burger House"},
	}

	exact := r.Resolve("KFC Kadıköy", sites)
	assert.ElementsMatch(t, []string{"KFC-TR-01", "KFC-TR-02"}, ids(exact))

	fuzzy := r.Resolve("kfc kadikoy sube", sites)
	assert.ElementsMatch(t, []string{"KFC-TR-01", "KFC-TR-02"}, ids(fuzzy))
}

func TestResolve_ShortAliasDoesNotMatchLongQuery(t *testing.T) {
	r := New(map[string][]string{"ASM-TR-01": {"AS"}})
	sites := []model.CanonicalEntity{{ID: "ASM-TR-01", Name: "Zeytin Hastanesi"}}

	assert.Empty(t, r.Resolve("as long as it works", sites))
}

func TestResolve_EntityAliasesFromRecord(t *testing.T) {
	r := New(nil)
	sites := []model.CanonicalEntity{{ID: "HSP-TR-03", Name: "Şehir Hastanesi", Aliases: []string{"City Hospital"}}}

	assert.Equal(t, []string{"HSP-TR-03"}, ids(r.Resolve("city hospital", sites)))
}

func TestResolve_SortedByScore(t *testing.T) {
	r := New(nil)
	sites := []model.CanonicalEntity{
		{ID: "AAA-TR-01", Name: "Marmara Park"},
		{ID: "BBB-TR-01", Name: "Marmaris Port"},
	}

	got := r.Resolve("marmara par", sites)
	require.NotEmpty(t, got)
	assert.Equal(t, "AAA-TR-01", got[0].ID)
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 100, Ratio("migros", "migros"))
	assert.Equal(t, 100, PartialRatio("nove", "este nove test"))
	assert.Less(t, Ratio("abc", "xyz"), Threshold)
	assert.GreaterOrEqual(t, Ratio("migrso", "migros"), Threshold)
	assert.Equal(t, 0, PartialRatio("", "abc"))
}

func TestKnownIDs(t *testing.T) {
	assert.Equal(t, []string{"ASM-TR-01", "EST-BR-09", "EST-TR-01", "MCD-EG-01", "MIG-TR-01"}, KnownIDs(testSites()))
}
