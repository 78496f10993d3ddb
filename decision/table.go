package decision

// Hit describes how a table produced its outputs.
type Hit struct {
	Rule      int  // index of the matched rule, -1 when defaults were used
	Defaulted bool // outputs came from the table defaults
}

// Evaluate resolves the table against facts using first-match-wins: rules
// are tried in declaration order and the first one whose input cells all
// match supplies the outputs. Every input column must be bound before any
// rule is tried, otherwise the result is MissingFact.
//
// When no rule matches, the table's defaults are returned if they cover
// every output column; otherwise the result is NoMatchingRule.
func (t *Table) Evaluate(facts Lookup) (map[string]string, Hit, error) {
	for _, column := range t.Inputs {
		if _, ok := facts.Get(column); !ok {
			return nil, Hit{Rule: -1}, missingFact(t.ID, column)
		}
	}

	for i, rule := range t.Rules {
		values, matched, err := rule.Match(t.ID, t.Inputs, facts)
		if err != nil {
			return nil, Hit{Rule: -1}, err
		}
		if !matched {
			continue
		}
		if len(values) != len(t.Outputs) {
			return nil, Hit{Rule: -1}, malformed("decision %s rule %d has %d output cells, expected %d", t.ID, i, len(values), len(t.Outputs))
		}
		out := make(map[string]string, len(t.Outputs))
		for j, column := range t.Outputs {
			out[column] = values[j]
		}
		return out, Hit{Rule: i}, nil
	}

	if defaults, ok := t.completeDefaults(); ok {
		return defaults, Hit{Rule: -1, Defaulted: true}, nil
	}
	return nil, Hit{Rule: -1}, &Error{Kind: KindNoMatchingRule, DecisionID: t.ID}
}

// completeDefaults returns the table defaults when every output has one.
func (t *Table) completeDefaults() (map[string]string, bool) {
	if len(t.Defaults) == 0 {
		return nil, false
	}
	out := make(map[string]string, len(t.Outputs))
	for _, column := range t.Outputs {
		v, ok := t.Defaults[column]
		if !ok {
			return nil, false
		}
		out[column] = v
	}
	return out, true
}

// policy returns the effective policy; the zero value propagates.
func (t *Table) policy() Policy {
	if t.Policy == "" {
		return PolicyPropagate
	}
	return t.Policy
}
