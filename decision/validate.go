package decision

import "slices"

// Validate checks the structural invariants of the model against DefaultLimits.
func (m *Model) Validate() error {
	return m.ValidateWithLimits(DefaultLimits())
}

// ValidateWithLimits checks the structural invariants of the model:
// unique decision ids, unique column names within a table, rule widths that
// match the declared columns, known policies, and the size limits.
// Every violation is reported as MalformedModel.
func (m *Model) ValidateWithLimits(l Limits) error {
	if m == nil {
		return malformed("model is nil")
	}
	if len(m.Tables) == 0 {
		return malformed("model declares no decisions")
	}
	if l.MaxDecisions > 0 && len(m.Tables) > l.MaxDecisions {
		return malformed("model declares %d decisions, maximum allowed is %d", len(m.Tables), l.MaxDecisions)
	}

	seen := make(map[string]bool, len(m.Tables))
	for i, t := range m.Tables {
		if t == nil {
			return malformed("decision #%d is nil", i)
		}
		if t.ID == "" {
			return malformed("decision #%d has an empty id", i)
		}
		if seen[t.ID] {
			return malformed("decision id %q is declared more than once", t.ID)
		}
		seen[t.ID] = true

		if err := t.validate(l); err != nil {
			return err
		}
	}

	derived := make(map[string]bool, len(m.Derived))
	for i, d := range m.Derived {
		if d.Name == "" {
			return malformed("derived fact #%d has an empty name", i)
		}
		if derived[d.Name] {
			return malformed("derived fact %q is declared more than once", d.Name)
		}
		derived[d.Name] = true
		if d.Deriver == nil {
			return malformed("derived fact %q has no compiled expression", d.Name)
		}
	}

	return nil
}

func (t *Table) validate(l Limits) error {
	if len(t.Outputs) == 0 {
		return malformed("decision %s declares no output columns", t.ID)
	}
	width := len(t.Inputs) + len(t.Outputs)
	if l.MaxColumns > 0 && width > l.MaxColumns {
		return malformed("decision %s declares %d columns, maximum allowed is %d", t.ID, width, l.MaxColumns)
	}
	if l.MaxRules > 0 && len(t.Rules) > l.MaxRules {
		return malformed("decision %s declares %d rules, maximum allowed is %d", t.ID, len(t.Rules), l.MaxRules)
	}
	if !t.Policy.Valid() {
		return malformed("decision %s has unknown policy %q", t.ID, t.Policy)
	}

	// A column may be both an input and an output of the same table; the
	// planner reports that as a one-table cycle.
	for _, group := range [][]string{t.Inputs, t.Outputs} {
		columns := make(map[string]bool, len(group))
		for _, c := range group {
			if c == "" {
				return malformed("decision %s has an empty column name", t.ID)
			}
			if columns[c] {
				return malformed("decision %s declares column %q more than once", t.ID, c)
			}
			columns[c] = true
		}
	}

	for i, r := range t.Rules {
		if len(r.Inputs) != len(t.Inputs) || len(r.Outputs) != len(t.Outputs) {
			return malformed("decision %s rule %d has %d cells, expected %d",
				t.ID, i, len(r.Inputs)+len(r.Outputs), width)
		}
		if l.MaxCellBytes > 0 {
			for _, c := range r.Inputs {
				if len(c.Value) > l.MaxCellBytes {
					return malformed("decision %s rule %d has a cell longer than %d bytes", t.ID, i, l.MaxCellBytes)
				}
			}
			for _, v := range r.Outputs {
				if len(v) > l.MaxCellBytes {
					return malformed("decision %s rule %d has a cell longer than %d bytes", t.ID, i, l.MaxCellBytes)
				}
			}
		}
	}

	for name := range t.Defaults {
		if !slices.Contains(t.Outputs, name) {
			return malformed("decision %s has a default for undeclared output %q", t.ID, name)
		}
	}

	return nil
}
