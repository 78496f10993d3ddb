package adapter

import (
	"encoding/json"
	"maps"

	"github.com/liamcoop/decisions/decision"
)

// Decision ids of the four-stage orchestration model.
const (
	DecisionRequestRouting    = "dec-requestRouting"
	DecisionSkillPolicy       = "dec-skillPolicy"
	DecisionAgentCapacity     = "dec-agentCapacity"
	DecisionOrchestrationPlan = "dec-orchestrationPlan"
)

// OrchestrationExports are the result fields of the orchestration model.
var OrchestrationExports = []string{"route", "policy", "capacity", "plan", "action"}

// OrchestrationInput is the input record of the orchestration model.
type OrchestrationInput struct {
	SystemStatus      string `json:"systemStatus"`
	RequestType       string `json:"requestType"`
	SkillCategory     string `json:"skillCategory"`
	SecurityLevel     string `json:"securityLevel"`
	AgentLoad         string `json:"agentLoad"`
	ContextComplexity string `json:"contextComplexity"`
}

// Facts returns the input as a fact record.
func (in OrchestrationInput) Facts() map[string]string {
	return map[string]string{
		"systemStatus":      in.SystemStatus,
		"requestType":       in.RequestType,
		"skillCategory":     in.SkillCategory,
		"securityLevel":     in.SecurityLevel,
		"agentLoad":         in.AgentLoad,
		"contextComplexity": in.ContextComplexity,
	}
}

// OrchestrationResult is the result record of the orchestration model.
type OrchestrationResult struct {
	Route    string `json:"route"`
	Policy   string `json:"policy"`
	Capacity string `json:"capacity"`
	Plan     string `json:"plan"`
	Action   string `json:"action"`
}

// OrchestrationResultFrom copies the exported values of res.
func OrchestrationResultFrom(res *decision.Result) OrchestrationResult {
	return OrchestrationResult{
		Route:    res.Values["route"],
		Policy:   res.Values["policy"],
		Capacity: res.Values["capacity"],
		Plan:     res.Values["plan"],
		Action:   res.Values["action"],
	}
}

// OrchestrationCatalog returns the columns of the four orchestration
// decisions, for documents whose decisions only carry an id and rules.
func OrchestrationCatalog() ColumnCatalog {
	return ColumnCatalog{
		DecisionRequestRouting: {
			Inputs:  []string{"systemStatus", "requestType"},
			Outputs: []string{"route"},
		},
		DecisionSkillPolicy: {
			Inputs:  []string{"skillCategory", "securityLevel"},
			Outputs: []string{"policy"},
		},
		DecisionAgentCapacity: {
			Inputs:  []string{"agentLoad", "contextComplexity"},
			Outputs: []string{"capacity"},
		},
		DecisionOrchestrationPlan: {
			Inputs:  []string{"route", "policy", "capacity"},
			Outputs: []string{"plan", "action"},
		},
	}
}

// OrchestrationDefaults returns the safe fallbacks used when a field was
// never produced.
func OrchestrationDefaults() map[string]string {
	return map[string]string{
		"route":    "reject",
		"policy":   "deny",
		"capacity": "heavy",
		"plan":     "deny",
		"action":   "stop",
	}
}

// orchestrationFields are the input fields every orchestration record must
// carry, in the order they are checked.
var orchestrationFields = []string{
	"systemStatus", "requestType",
	"skillCategory", "securityLevel",
	"agentLoad", "contextComplexity",
}

// ParseOrchestrationInput parses an orchestration input record. Every field
// is required; an absent field is MissingFact and unknown fields are ignored.
func ParseOrchestrationInput(raw []byte) (OrchestrationInput, error) {
	facts, err := ParseInput(raw)
	if err != nil {
		return OrchestrationInput{}, err
	}
	for _, name := range orchestrationFields {
		if _, ok := facts[name]; !ok {
			return OrchestrationInput{}, &decision.Error{Kind: decision.KindMissingFact, Column: name}
		}
	}
	return OrchestrationInput{
		SystemStatus:      facts["systemStatus"],
		RequestType:       facts["requestType"],
		SkillCategory:     facts["skillCategory"],
		SecurityLevel:     facts["securityLevel"],
		AgentLoad:         facts["agentLoad"],
		ContextComplexity: facts["contextComplexity"],
	}, nil
}

// EvaluateOrchestration evaluates an orchestration document against an
// input record and returns either the result object or the error object.
// It never panics on malformed documents.
func EvaluateOrchestration(modelJSON, inputJSON []byte) []byte {
	model, err := ParseModel(modelJSON, WithColumnCatalog(OrchestrationCatalog()))
	if err != nil {
		return RenderError(err)
	}

	in, err := ParseOrchestrationInput(inputJSON)
	if err != nil {
		return RenderError(err)
	}

	defaults := OrchestrationDefaults()
	maps.Copy(defaults, model.Defaults)
	applyOrchestrationFallbacks(model, defaults)

	facts := in.Facts()
	seedAbsentDecisions(model, defaults, facts)

	res, err := decision.Run(model, facts, OrchestrationExports, decision.WithDefaults(defaults))
	if err != nil {
		return RenderError(err)
	}

	out, err := json.Marshal(OrchestrationResultFrom(res))
	if err != nil {
		return RenderError(err)
	}
	return out
}

// applyOrchestrationFallbacks makes every catalog decision that configures
// neither a policy nor defaults fall back to the safe defaults when no rule
// matches, so later stages still run.
func applyOrchestrationFallbacks(m *decision.Model, defaults map[string]string) {
	catalog := OrchestrationCatalog()
	for _, t := range m.Tables {
		if _, known := catalog[t.ID]; !known || t.Policy != "" || len(t.Defaults) > 0 {
			continue
		}
		t.Policy = decision.PolicyDefaultAndContinue
		t.Defaults = make(map[string]string, len(t.Outputs))
		for _, column := range t.Outputs {
			if v, ok := defaults[column]; ok {
				t.Defaults[column] = v
			}
		}
	}
}

// seedAbsentDecisions adds the default outputs of catalog decisions missing
// from m to facts, so the stages that consume them still run. Columns some
// other table produces are left alone.
func seedAbsentDecisions(m *decision.Model, defaults, facts map[string]string) {
	produced := make(map[string]bool)
	for _, t := range m.Tables {
		for _, column := range t.Outputs {
			produced[column] = true
		}
	}

	for id, cols := range OrchestrationCatalog() {
		if _, present := m.Table(id); present {
			continue
		}
		for _, column := range cols.Outputs {
			if v, ok := defaults[column]; ok && !produced[column] {
				facts[column] = v
			}
		}
	}
}
