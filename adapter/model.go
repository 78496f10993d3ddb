// Package adapter converts between the external JSON/YAML representation of
// decision models, input records and results and the decision package.
package adapter

import (
	"encoding/json"
	"fmt"

	"github.com/liamcoop/decisions/decision"
	"gopkg.in/yaml.v3"
)

// DefaultMaxModelBytes bounds the size of a raw model document.
const DefaultMaxModelBytes = 4 << 20

// Columns declares the input/output split of a decision table.
type Columns struct {
	Inputs  []string
	Outputs []string
}

// ColumnCatalog supplies columns for decisions whose definition omits them,
// keyed by decision id.
type ColumnCatalog map[string]Columns

// ParseOption configures model parsing.
type ParseOption func(*parseConfig)

type parseConfig struct {
	catalog  ColumnCatalog
	limits   decision.Limits
	maxBytes int
}

// WithColumnCatalog lets decisions omit their inputs/outputs when the
// catalog knows their id.
func WithColumnCatalog(c ColumnCatalog) ParseOption {
	return func(pc *parseConfig) { pc.catalog = c }
}

// WithLimits overrides the model size limits.
func WithLimits(l decision.Limits) ParseOption {
	return func(pc *parseConfig) { pc.limits = l }
}

// WithMaxBytes overrides the raw document size limit.
func WithMaxBytes(n int) ParseOption {
	return func(pc *parseConfig) { pc.maxBytes = n }
}

// wireModel is the document shape shared by the JSON and YAML encodings.
type wireModel struct {
	Decisions []wireDecision    `json:"decisions" yaml:"decisions"`
	Defaults  map[string]string `json:"defaults,omitempty" yaml:"defaults,omitempty"`
	Exports   []string          `json:"exports,omitempty" yaml:"exports,omitempty"`
	Derived   []wireDerived     `json:"derived,omitempty" yaml:"derived,omitempty"`

	// Orchestration documents wrap the model as {"dmn-model": {...}}.
	Envelope *wireModel `json:"dmn-model,omitempty" yaml:"dmn-model,omitempty"`
}

type wireDecision struct {
	ID       string            `json:"id" yaml:"id"`
	Inputs   []string          `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs  []string          `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Rules    [][]any           `json:"rules" yaml:"rules"`
	Defaults map[string]string `json:"defaults,omitempty" yaml:"defaults,omitempty"`
	Policy   string            `json:"policy,omitempty" yaml:"policy,omitempty"`
}

type wireDerived struct {
	Name       string `json:"name" yaml:"name"`
	Expression string `json:"expression" yaml:"expression"`
}

// ParseModel parses a JSON decision model and validates its structure.
// Every structural problem is reported as decision.ErrMalformedModel.
func ParseModel(raw []byte, opts ...ParseOption) (*decision.Model, error) {
	cfg := newParseConfig(opts)
	if err := checkSize(raw, cfg.maxBytes); err != nil {
		return nil, err
	}

	var w wireModel
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, malformed("invalid JSON: %v", err)
	}
	return buildModel(&w, cfg)
}

// ParseModelYAML parses a YAML decision model with the same shape as the
// JSON one.
func ParseModelYAML(raw []byte, opts ...ParseOption) (*decision.Model, error) {
	cfg := newParseConfig(opts)
	if err := checkSize(raw, cfg.maxBytes); err != nil {
		return nil, err
	}

	var w wireModel
	if err := yaml.Unmarshal(raw, &w); err != nil {
		return nil, malformed("invalid YAML: %v", err)
	}
	return buildModel(&w, cfg)
}

func newParseConfig(opts []ParseOption) parseConfig {
	cfg := parseConfig{
		limits:   decision.DefaultLimits(),
		maxBytes: DefaultMaxModelBytes,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func checkSize(raw []byte, max int) error {
	if len(raw) == 0 {
		return malformed("model document is empty")
	}
	if max > 0 && len(raw) > max {
		return malformed("model document is %d bytes, maximum allowed is %d", len(raw), max)
	}
	return nil
}

func buildModel(w *wireModel, cfg parseConfig) (*decision.Model, error) {
	if w.Decisions == nil && w.Envelope != nil {
		w = w.Envelope
	}
	if len(w.Decisions) == 0 {
		return nil, malformed("model declares no decisions")
	}
	if cfg.limits.MaxDecisions > 0 && len(w.Decisions) > cfg.limits.MaxDecisions {
		return nil, malformed("model declares %d decisions, maximum allowed is %d", len(w.Decisions), cfg.limits.MaxDecisions)
	}

	m := &decision.Model{
		Tables:   make([]*decision.Table, 0, len(w.Decisions)),
		Defaults: w.Defaults,
		Exports:  w.Exports,
	}

	for i := range w.Decisions {
		t, err := buildTable(&w.Decisions[i], i, cfg)
		if err != nil {
			return nil, err
		}
		m.Tables = append(m.Tables, t)
	}

	for _, name := range w.Exports {
		if err := validateIdentifier(name); err != nil {
			return nil, malformed("invalid export name %q: %v", name, err)
		}
	}
	for name := range w.Defaults {
		if err := validateIdentifier(name); err != nil {
			return nil, malformed("invalid default name %q: %v", name, err)
		}
	}

	for _, d := range w.Derived {
		if err := validateIdentifier(d.Name); err != nil {
			return nil, malformed("invalid derived fact name %q: %v", d.Name, err)
		}
		deriver, err := CompileDerived(d.Expression)
		if err != nil {
			return nil, malformed("derived fact %s: %v", d.Name, err)
		}
		m.Derived = append(m.Derived, decision.DerivedFact{
			Name:       d.Name,
			Expression: d.Expression,
			Deriver:    deriver,
		})
	}

	if err := m.ValidateWithLimits(cfg.limits); err != nil {
		return nil, err
	}
	return m, nil
}

func buildTable(d *wireDecision, index int, cfg parseConfig) (*decision.Table, error) {
	if err := validateIdentifier(d.ID); err != nil {
		return nil, malformed("decision #%d has invalid id %q: %v", index, d.ID, err)
	}

	inputs, outputs := d.Inputs, d.Outputs
	if len(inputs) == 0 && len(outputs) == 0 {
		cols, ok := cfg.catalog[d.ID]
		if !ok {
			return nil, malformed("decision %s declares no columns", d.ID)
		}
		inputs, outputs = cols.Inputs, cols.Outputs
	}
	for _, c := range append(append([]string(nil), inputs...), outputs...) {
		if err := validateIdentifier(c); err != nil {
			return nil, malformed("decision %s has invalid column %q: %v", d.ID, c, err)
		}
	}

	if cfg.limits.MaxRules > 0 && len(d.Rules) > cfg.limits.MaxRules {
		return nil, malformed("decision %s declares %d rules, maximum allowed is %d", d.ID, len(d.Rules), cfg.limits.MaxRules)
	}

	width := len(inputs) + len(outputs)
	t := &decision.Table{
		ID:       d.ID,
		Inputs:   append([]string(nil), inputs...),
		Outputs:  append([]string(nil), outputs...),
		Rules:    make([]decision.Rule, 0, len(d.Rules)),
		Defaults: d.Defaults,
		Policy:   decision.Policy(d.Policy),
	}

	for i, cells := range d.Rules {
		if len(cells) != width {
			return nil, malformed("decision %s rule %d has %d cells, expected %d", d.ID, i, len(cells), width)
		}
		rule := decision.Rule{
			Inputs:  make([]decision.Cell, len(inputs)),
			Outputs: make([]string, len(outputs)),
		}
		for j, cell := range cells {
			s, ok := cell.(string)
			if !ok {
				return nil, malformed("decision %s rule %d cell %d is %s, expected a string", d.ID, i, j, describe(cell))
			}
			if j < len(inputs) {
				rule.Inputs[j] = decision.ParseCell(s)
			} else {
				rule.Outputs[j-len(inputs)] = s
			}
		}
		t.Rules = append(t.Rules, rule)
	}

	return t, nil
}

func describe(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%T", v)
}

func malformed(format string, args ...any) error {
	return &decision.Error{Kind: decision.KindMalformedModel, Detail: fmt.Sprintf(format, args...)}
}
