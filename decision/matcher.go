package decision

// Matches reports whether the cell accepts the given fact value.
func (c Cell) Matches(value string) bool {
	return c.Any || c.Value == value
}

// Match compares the rule's input cells, position by position, with the
// facts bound to inputs. It returns the rule's output values unmodified when
// every position matches. A fact that is not bound at all is a MissingFact
// error rather than a non-match; decisionID is only used to label it.
func (r Rule) Match(decisionID string, inputs []string, facts Lookup) ([]string, bool, error) {
	if len(r.Inputs) != len(inputs) {
		return nil, false, malformed("decision %s rule has %d input cells, expected %d", decisionID, len(r.Inputs), len(inputs))
	}
	for i, column := range inputs {
		value, ok := facts.Get(column)
		if !ok {
			return nil, false, missingFact(decisionID, column)
		}
		if !r.Inputs[i].Matches(value) {
			return nil, false, nil
		}
	}
	return r.Outputs, true, nil
}
