package decision

import "strings"

// row builds a rule from external cell syntax, splitting after nIn cells.
func row(nIn int, cells ...string) Rule {
	r := Rule{}
	for i, c := range cells {
		if i < nIn {
			r.Inputs = append(r.Inputs, ParseCell(c))
		} else {
			r.Outputs = append(r.Outputs, c)
		}
	}
	return r
}

func routingTable() *Table {
	return &Table{
		ID:      "dec-requestRouting",
		Inputs:  []string{"systemStatus", "requestType"},
		Outputs: []string{"route"},
		Rules: []Rule{
			row(2, "active", "query", "route-fast"),
			row(2, "-", "-", "route-default"),
		},
	}
}

func policyTable() *Table {
	return &Table{
		ID:      "dec-skillPolicy",
		Inputs:  []string{"skillCategory", "securityLevel"},
		Outputs: []string{"policy"},
		Rules: []Rule{
			row(2, "code", "high", "allow-sandboxed"),
			row(2, "code", "-", "allow"),
			row(2, "-", "-", "deny"),
		},
	}
}

func capacityTable() *Table {
	return &Table{
		ID:      "dec-agentCapacity",
		Inputs:  []string{"agentLoad", "contextComplexity"},
		Outputs: []string{"capacity"},
		Rules: []Rule{
			row(2, "low", "-", "light"),
			row(2, "-", "low", "light"),
			row(2, "-", "-", "heavy"),
		},
	}
}

func planTable() *Table {
	return &Table{
		ID:      "dec-orchestrationPlan",
		Inputs:  []string{"route", "policy", "capacity"},
		Outputs: []string{"plan", "action"},
		Rules: []Rule{
			row(3, "route-fast", "allow", "light", "single-agent", "go"),
			row(3, "-", "deny", "-", "deny", "stop"),
			row(3, "-", "-", "-", "queue", "wait"),
		},
	}
}

func orchestrationModel() *Model {
	return &Model{
		Tables: []*Table{routingTable(), policyTable(), capacityTable(), planTable()},
		Defaults: map[string]string{
			"route": "reject", "policy": "deny", "capacity": "heavy", "plan": "deny", "action": "stop",
		},
		Exports: []string{"route", "policy", "capacity", "plan", "action"},
	}
}

func orchestrationFacts() map[string]string {
	return map[string]string{
		"systemStatus":      "active",
		"requestType":       "query",
		"skillCategory":     "code",
		"securityLevel":     "low",
		"agentLoad":         "low",
		"contextComplexity": "high",
	}
}

type staticDeriver func(map[string]string) (string, error)

func (f staticDeriver) Derive(facts map[string]string) (string, error) { return f(facts) }

func upper(name string) Deriver {
	return staticDeriver(func(facts map[string]string) (string, error) {
		return strings.ToUpper(facts[name]), nil
	})
}
