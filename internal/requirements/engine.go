// Package requirements decides which fields an operation still needs.
//
// The tables are static configuration. The parser's own missing-field list is
// advisory: Reconcile filters it against the engine's verdict, which is always
// computed from the full merged payload.
package requirements

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/capitalize-ai/field-ops-assistant/internal/model"
)

//go:embed tables.yaml
var defaultTables []byte

// Level is the severity of a field for an operation.
type Level string

const (
	LevelMust      Level = "must"
	LevelImportant Level = "important"
	LevelOptional  Level = "optional"
)

// Condition is a predicate over a sibling field. The sibling must be known.
type Condition struct {
	Field string   `yaml:"field"`
	In    []string `yaml:"in,omitempty"`
	NotIn []string `yaml:"not_in,omitempty"`
}

// Holds evaluates the condition against data.
func (c Condition) Holds(data model.Data) bool {
	v := data.String(c.Field)
	if v == "" {
		return false
	}
	if len(c.In) > 0 && !containsFold(c.In, v) {
		return false
	}
	return !containsFold(c.NotIn, v)
}

// ConditionalField is a field that becomes relevant when its condition holds.
type ConditionalField struct {
	Field string    `yaml:"field"`
	When  Condition `yaml:"when"`
}

// Spec is the requirement table for one record collection.
type Spec struct {
	Must                 []string            `yaml:"must"`
	Important            []string            `yaml:"important,omitempty"`
	Optional             []string            `yaml:"optional,omitempty"`
	ImportantConditional []ConditionalField  `yaml:"important_conditional,omitempty"`
	CategoryField        string              `yaml:"category_field,omitempty"`
	MustWhenCategory     map[string][]string `yaml:"must_when_category,omitempty"`

	// EntriesSatisfy lists must fields covered by a non-empty entries list.
	EntriesSatisfy []string `yaml:"entries_satisfy,omitempty"`
}

// Result splits missing fields into blocking and informational ones.
type Result struct {
	Must      []string
	Important []string
}

// Blocked reports whether any must field is missing.
func (r Result) Blocked() bool {
	return len(r.Must) > 0
}

// Missing returns all missing fields, must first.
func (r Result) Missing() []string {
	out := make([]string, 0, len(r.Must)+len(r.Important))
	out = append(out, r.Must...)
	return append(out, r.Important...)
}

// Engine evaluates requirement tables.
type Engine struct {
	tables map[string]Spec
}

// Default returns an engine using the bundled tables.
func Default() (*Engine, error) {
	return Parse(defaultTables)
}

// Load reads tables from a YAML file.
func Load(path string) (*Engine, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read requirement tables: %w", err)
	}
	return Parse(raw)
}

// Parse builds an engine from YAML tables.
func Parse(raw []byte) (*Engine, error) {
	tables := map[string]Spec{}
	if err := yaml.Unmarshal(raw, &tables); err != nil {
		return nil, fmt.Errorf("parse requirement tables: %w", err)
	}
	for _, op := range model.WriteOperations {
		info, _ := op.Info()
		if _, ok := tables[info.Requirements]; !ok {
			return nil, fmt.Errorf("no requirement table %q for %s", info.Requirements, op)
		}
	}
	return &Engine{tables: tables}, nil
}

// SpecFor returns the table for op.
func (e *Engine) SpecFor(op model.Operation) (Spec, bool) {
	info, ok := op.Info()
	if !ok {
		return Spec{}, false
	}
	spec, ok := e.tables[info.Requirements]
	return spec, ok
}

// Classify returns the severity of field for op given the target category.
// Category-dependent must fields are downgraded to important when category is unknown.
func (e *Engine) Classify(field string, op model.Operation, category string) Level {
	spec, ok := e.SpecFor(op)
	if !ok {
		return LevelOptional
	}
	if contains(spec.Must, field) {
		return LevelMust
	}
	if contains(spec.Important, field) {
		return LevelImportant
	}
	for _, cf := range spec.ImportantConditional {
		if cf.Field == field {
			return LevelImportant
		}
	}
	if category != "" {
		if fields, ok := lookupCategory(spec.MustWhenCategory, category); ok && contains(fields, field) {
			return LevelMust
		}
		return LevelOptional
	}
	for _, fields := range spec.MustWhenCategory {
		if contains(fields, field) {
			return LevelImportant
		}
	}
	return LevelOptional
}

// Evaluate computes missing fields for op from the full payload.
func (e *Engine) Evaluate(op model.Operation, data model.Data, category string) Result {
	spec, ok := e.SpecFor(op)
	if !ok {
		return Result{}
	}
	if category == "" && spec.CategoryField != "" {
		category = data.String(spec.CategoryField)
	}

	entries := data.Entries(model.FieldEntries)
	var res Result
	add := func(list *[]string, field string) {
		if !contains(res.Must, field) && !contains(res.Important, field) {
			*list = append(*list, field)
		}
	}

	for _, f := range spec.Must {
		if len(entries) > 0 && contains(spec.EntriesSatisfy, f) {
			continue
		}
		if !data.Has(f) {
			add(&res.Must, f)
		}
	}

	if len(spec.MustWhenCategory) > 0 {
		if category != "" {
			fields, _ := lookupCategory(spec.MustWhenCategory, category)
			for _, f := range fields {
				if !data.Has(f) {
					add(&res.Must, f)
				}
			}
		} else {
			for _, cat := range sortedKeys(spec.MustWhenCategory) {
				for _, f := range spec.MustWhenCategory[cat] {
					if !data.Has(f) {
						add(&res.Important, f)
					}
				}
			}
		}
	}

	for _, f := range spec.Important {
		if !data.Has(f) {
			add(&res.Important, f)
		}
	}

	for _, cf := range spec.ImportantConditional {
		if conditionalMissing(cf, data, entries) {
			add(&res.Important, cf.Field)
		}
	}
	return res
}

// MissingFor returns every field op still needs, must fields first.
func (e *Engine) MissingFor(op model.Operation, data model.Data) []string {
	return e.Evaluate(op, data, "").Missing()
}

// Fields lists every field the table for op mentions, in table order.
func (e *Engine) Fields(op model.Operation) []string {
	spec, ok := e.SpecFor(op)
	if !ok {
		return nil
	}
	var out []string
	add := func(fields ...string) {
		for _, f := range fields {
			if !contains(out, f) {
				out = append(out, f)
			}
		}
	}
	add(spec.Must...)
	add(spec.Important...)
	for _, cf := range spec.ImportantConditional {
		add(cf.Field)
	}
	for _, k := range sortedKeys(spec.MustWhenCategory) {
		add(spec.MustWhenCategory[k]...)
	}
	add(spec.Optional...)
	return out
}

// Reconcile filters the parser's advisory list against the engine's verdict.
// Fields the engine does not require are dropped and fields it flags are added;
// parser ordering is kept for the overlap.
func Reconcile(parser []string, verdict Result) Result {
	order := func(list []string) []string {
		out := make([]string, 0, len(list))
		for _, f := range parser {
			if contains(list, f) && !contains(out, f) {
				out = append(out, f)
			}
		}
		for _, f := range list {
			if !contains(out, f) {
				out = append(out, f)
			}
		}
		return out
	}
	return Result{Must: order(verdict.Must), Important: order(verdict.Important)}
}

func conditionalMissing(cf ConditionalField, data model.Data, entries []model.Data) bool {
	if len(entries) > 0 && cf.When.Field != "" && !data.Has(cf.When.Field) {
		for _, entry := range entries {
			if cf.When.Holds(entry) && !entry.Has(cf.Field) {
				return true
			}
		}
		return false
	}
	return cf.When.Holds(data) && !data.Has(cf.Field)
}

func lookupCategory(m map[string][]string, category string) ([]string, bool) {
	for k, v := range m {
		if strings.EqualFold(k, category) {
			return v, true
		}
	}
	return nil, false
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
