package adapter

import (
	"encoding/json"

	"github.com/liamcoop/decisions/decision"
)

// EncodeModel renders a model back into its canonical JSON document, with
// explicit columns on every decision.
func EncodeModel(m *decision.Model) ([]byte, error) {
	w := wireModel{
		Decisions: make([]wireDecision, 0, len(m.Tables)),
		Defaults:  m.Defaults,
		Exports:   m.Exports,
	}
	for _, t := range m.Tables {
		d := wireDecision{
			ID:       t.ID,
			Inputs:   t.Inputs,
			Outputs:  t.Outputs,
			Rules:    make([][]any, 0, len(t.Rules)),
			Defaults: t.Defaults,
			Policy:   string(t.Policy),
		}
		for _, r := range t.Rules {
			cells := make([]any, 0, len(r.Inputs)+len(r.Outputs))
			for _, c := range r.Inputs {
				cells = append(cells, c.String())
			}
			for _, v := range r.Outputs {
				cells = append(cells, v)
			}
			d.Rules = append(d.Rules, cells)
		}
		w.Decisions = append(w.Decisions, d)
	}
	for _, d := range m.Derived {
		w.Derived = append(w.Derived, wireDerived{Name: d.Name, Expression: d.Expression})
	}
	return json.Marshal(w)
}
