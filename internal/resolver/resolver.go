// Package resolver maps free-text site references onto canonical entities.
package resolver

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/capitalize-ai/field-ops-assistant/internal/model"
	"github.com/capitalize-ai/field-ops-assistant/internal/textnorm"
)

// Threshold is the minimum fuzzy score (0-100) for a candidate to be returned.
const Threshold = 70

// minPartialQuery is the shortest query allowed to substring-match names.
const minPartialQuery = 3

//go:embed aliases.yaml
var defaultAliases []byte

// Resolver resolves references against a supplied entity list.
type Resolver struct {
	curated map[string][]string
}

// New creates a resolver with the given curated aliases keyed by entity id.
func New(curated map[string][]string) *Resolver {
	c := make(map[string][]string, len(curated))
	for id, aliases := range curated {
		c[strings.ToUpper(strings.TrimSpace(id))] = aliases
	}
	return &Resolver{curated: c}
}

// DefaultAliases returns the aliases bundled with the binary.
func DefaultAliases() (map[string][]string, error) {
	return parseAliases(defaultAliases)
}

// LoadAliases reads curated aliases from a YAML file.
func LoadAliases(path string) (map[string][]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read aliases: %w", err)
	}
	return parseAliases(raw)
}

func parseAliases(raw []byte) (map[string][]string, error) {
	out := map[string][]string{}
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse aliases: %w", err)
	}
	return out, nil
}

type index struct {
	byID    map[string]model.CanonicalEntity
	byName  map[string][]model.CanonicalEntity
	byAlias map[string][]model.CanonicalEntity
	order   map[string]int
}

func (r *Resolver) build(entities []model.CanonicalEntity) *index {
	idx := &index{
		byID:    make(map[string]model.CanonicalEntity, len(entities)),
		byName:  make(map[string][]model.CanonicalEntity),
		byAlias: make(map[string][]model.CanonicalEntity),
		order:   make(map[string]int, len(entities)),
	}
	for i, e := range entities {
		id := strings.ToUpper(strings.TrimSpace(e.ID))
		if id == "" {
			continue
		}
		if _, dup := idx.byID[id]; dup {
			continue
		}
		idx.byID[id] = e
		idx.order[id] = i

		if name := textnorm.Fold(e.Name); name != "" {
			idx.byName[name] = append(idx.byName[name], e)
		}

		aliases := append([]string{}, e.Aliases...)
		aliases = append(aliases, r.curated[id]...)
		if prefix, _, ok := strings.Cut(id, "-"); ok {
			aliases = append(aliases, prefix)
		}
		for _, a := range aliases {
			key := textnorm.Fold(a)
			if key == "" || containsID(idx.byAlias[key], id) {
				continue
			}
			idx.byAlias[key] = append(idx.byAlias[key], e)
		}
	}
	return idx
}

// Resolve returns zero, one or many entities for query. Exact id, exact name
// and exact alias matches short-circuit in that order; otherwise all fuzzy
// candidates scoring at least Threshold are returned, best first.
func (r *Resolver) Resolve(query string, entities []model.CanonicalEntity) []model.CanonicalEntity {
	q := textnorm.Fold(query)
	if q == "" || len(entities) == 0 {
		return nil
	}
	idx := r.build(entities)

	if e, ok := idx.byID[strings.ToUpper(strings.TrimSpace(query))]; ok {
		return []model.CanonicalEntity{e}
	}
	if hits := idx.byName[q]; len(hits) > 0 {
		return append([]model.CanonicalEntity(nil), hits...)
	}
	if hits := idx.byAlias[q]; len(hits) > 0 {
		return append([]model.CanonicalEntity(nil), hits...)
	}
	return idx.fuzzy(q)
}

type candidate struct {
	entity model.CanonicalEntity
	score  int
	order  int
}

func (idx *index) fuzzy(q string) []model.CanonicalEntity {
	best := map[string]*candidate{}
	consider := func(e model.CanonicalEntity, score int) {
		if score < Threshold {
			return
		}
		id := strings.ToUpper(e.ID)
		if c, ok := best[id]; ok {
			if score > c.score {
				c.score = score
			}
			return
		}
		best[id] = &candidate{entity: e, score: score, order: idx.order[id]}
	}

	for name, hits := range idx.byName {
		var score int
		if len([]rune(q)) >= minPartialQuery {
			score = PartialRatio(q, name)
		} else {
			score = Ratio(q, name)
		}
		for _, e := range hits {
			consider(e, score)
		}
	}
	// Aliases use the plain ratio so short aliases do not match long queries.
	for alias, hits := range idx.byAlias {
		score := Ratio(q, alias)
		for _, e := range hits {
			consider(e, score)
		}
	}

	ranked := make([]*candidate, 0, len(best))
	for _, c := range best {
		ranked = append(ranked, c)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].order < ranked[j].order
	})

	out := make([]model.CanonicalEntity, len(ranked))
	for i, c := range ranked {
		out[i] = c.entity
	}
	return out
}

// KnownIDs lists the entity ids, used as a hint when nothing matched.
func KnownIDs(entities []model.CanonicalEntity) []string {
	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		ids = append(ids, e.ID)
	}
	sort.Strings(ids)
	return ids
}

func containsID(list []model.CanonicalEntity, id string) bool {
	for _, e := range list {
		if strings.EqualFold(e.ID, id) {
			return true
		}
	}
	return false
}
