package adapter

import (
	"fmt"
	"strings"
	"testing"

	"github.com/liamcoop/decisions/decision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const routingModel = `{
  "decisions": [
    {
      "id": "dec-requestRouting",
      "inputs": ["systemStatus", "requestType"],
      "outputs": ["route"],
      "rules": [["active", "query", "route-fast"], ["-", "-", "route-default"]]
    }
  ]
}`

func TestParseModelRouting(t *testing.T) {
	m, err := ParseModel([]byte(routingModel))
	require.NoError(t, err)
	require.Len(t, m.Tables, 1)

	tbl := m.Tables[0]
	assert.Equal(t, "dec-requestRouting", tbl.ID)
	assert.Equal(t, []string{"systemStatus", "requestType"}, tbl.Inputs)
	assert.Equal(t, []string{"route"}, tbl.Outputs)
	require.Len(t, tbl.Rules, 2)
	assert.Equal(t, []decision.Cell{decision.Literal("active"), decision.Literal("query")}, tbl.Rules[0].Inputs)
	assert.Equal(t, []decision.Cell{decision.Any(), decision.Any()}, tbl.Rules[1].Inputs)
	assert.Equal(t, []string{"route-default"}, tbl.Rules[1].Outputs)
}

func TestParseModelScenarios(t *testing.T) {
	m, err := ParseModel([]byte(routingModel))
	require.NoError(t, err)

	tests := []struct {
		input string
		want  string
	}{
		{`{"systemStatus":"active","requestType":"query"}`, `{"route":"route-fast"}`},
		{`{"systemStatus":"down","requestType":"query"}`, `{"route":"route-default"}`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			facts, err := ParseInput([]byte(tt.input))
			require.NoError(t, err)
			res, err := decision.Run(m, facts, []string{"route"})
			require.NoError(t, err)
			out, err := RenderResult(res)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(out))
		})
	}
}

func TestParseModelMalformed(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{"empty document", ``, "empty"},
		{"not JSON", `{"decisions": [`, "invalid JSON"},
		{"no decisions", `{"decisions": []}`, "no decisions"},
		{
			"short rule row",
			`{"decisions":[{"id":"d","inputs":["a","b"],"outputs":["o"],"rules":[["x","y","z"],["x","z"]]}]}`,
			"rule 1 has 2 cells, expected 3",
		},
		{
			"long rule row",
			`{"decisions":[{"id":"d","inputs":["a"],"outputs":["o"],"rules":[["x","y","z"]]}]}`,
			"expected 2",
		},
		{
			"non-string cell",
			`{"decisions":[{"id":"d","inputs":["a"],"outputs":["o"],"rules":[["x",1]]}]}`,
			"expected a string",
		},
		{
			"null cell",
			`{"decisions":[{"id":"d","inputs":["a"],"outputs":["o"],"rules":[[null,"y"]]}]}`,
			"null",
		},
		{
			"duplicate ids",
			`{"decisions":[{"id":"d","inputs":["a"],"outputs":["o"],"rules":[]},{"id":"d","inputs":["a"],"outputs":["p"],"rules":[]}]}`,
			"more than once",
		},
		{
			"no columns and no catalog",
			`{"decisions":[{"id":"dec-requestRouting","rules":[["a","b","c"]]}]}`,
			"declares no columns",
		},
		{
			"invalid id",
			`{"decisions":[{"id":"9lives","inputs":["a"],"outputs":["o"],"rules":[]}]}`,
			"invalid id",
		},
		{
			"invalid column",
			`{"decisions":[{"id":"d","inputs":["has space"],"outputs":["o"],"rules":[]}]}`,
			"invalid column",
		},
		{
			"unknown policy",
			`{"decisions":[{"id":"d","inputs":["a"],"outputs":["o"],"rules":[],"policy":"retry"}]}`,
			"unknown policy",
		},
		{
			"bad derived expression",
			`{"decisions":[{"id":"d","inputs":["a"],"outputs":["o"],"rules":[]}],"derived":[{"name":"x","expression":"facts.a +"}]}`,
			"derived fact x",
		},
		{
			"derived expression not a string",
			`{"decisions":[{"id":"d","inputs":["a"],"outputs":["o"],"rules":[]}],"derived":[{"name":"x","expression":"size(facts) > 1"}]}`,
			"expected string",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseModel([]byte(tt.raw))
			require.ErrorIs(t, err, decision.ErrMalformedModel)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseModelRejectsOversizedModels(t *testing.T) {
	t.Run("document bytes", func(t *testing.T) {
		_, err := ParseModel([]byte(routingModel), WithMaxBytes(10))
		require.ErrorIs(t, err, decision.ErrMalformedModel)
	})

	t.Run("rule count", func(t *testing.T) {
		var rules []string
		for i := 0; i < 20; i++ {
			rules = append(rules, fmt.Sprintf(`["v%d","o"]`, i))
		}
		raw := `{"decisions":[{"id":"d","inputs":["a"],"outputs":["o"],"rules":[` + strings.Join(rules, ",") + `]}]}`

		limits := decision.DefaultLimits()
		limits.MaxRules = 10
		_, err := ParseModel([]byte(raw), WithLimits(limits))
		require.ErrorIs(t, err, decision.ErrMalformedModel)
		assert.Contains(t, err.Error(), "20 rules")
	})
}

func TestParseModelEnvelopeAndCatalog(t *testing.T) {
	raw := `{
	  "dmn-model": {
	    "decisions": [
	      {"id": "dec-requestRouting", "rules": [["active", "query", "route-fast"], ["-", "-", "route-default"]]},
	      {"id": "dec-skillPolicy", "rules": [["-", "-", "allow"]]}
	    ]
	  }
	}`

	m, err := ParseModel([]byte(raw), WithColumnCatalog(OrchestrationCatalog()))
	require.NoError(t, err)
	require.Len(t, m.Tables, 2)
	assert.Equal(t, []string{"skillCategory", "securityLevel"}, m.Tables[1].Inputs)
	assert.Equal(t, []string{"policy"}, m.Tables[1].Outputs)
}

func TestParseModelYAML(t *testing.T) {
	raw := `
decisions:
  - id: dec-requestRouting
    inputs: [systemStatus, requestType]
    outputs: [route]
    policy: default-and-continue
    defaults:
      route: reject
    rules:
      - ["active", "query", "route-fast"]
      - ["-", "command", "route-slow"]
defaults:
  action: stop
exports: [route, action]
derived:
  - name: statusTag
    expression: "'status-' + facts.systemStatus"
`
	m, err := ParseModelYAML([]byte(raw))
	require.NoError(t, err)

	tbl := m.Tables[0]
	assert.Equal(t, decision.PolicyDefaultAndContinue, tbl.Policy)
	assert.Equal(t, map[string]string{"route": "reject"}, tbl.Defaults)
	assert.Equal(t, []string{"route", "action"}, m.Exports)
	require.Len(t, m.Derived, 1)

	res, err := decision.Run(m, map[string]string{"systemStatus": "down", "requestType": "query"}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"route": "reject", "action": "stop"}, res.Values)

	t.Run("numeric cell", func(t *testing.T) {
		_, err := ParseModelYAML([]byte("decisions:\n  - id: d\n    inputs: [a]\n    outputs: [o]\n    rules:\n      - [1, \"x\"]\n"))
		require.ErrorIs(t, err, decision.ErrMalformedModel)
	})
}

func TestDerivedFactsEndToEnd(t *testing.T) {
	raw := `{
	  "decisions": [
	    {"id": "dec-tier", "inputs": ["tier"], "outputs": ["route"],
	     "rules": [["gold", "route-fast"], ["-", "route-default"]]}
	  ],
	  "derived": [
	    {"name": "tier", "expression": "facts.plan == 'premium' ? 'gold' : 'standard'"}
	  ]
	}`
	m, err := ParseModel([]byte(raw))
	require.NoError(t, err)

	res, err := decision.Run(m, map[string]string{"plan": "premium"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "route-fast", res.Values["route"])

	_, err = decision.Run(m, map[string]string{}, nil)
	require.ErrorIs(t, err, decision.ErrDerivationFailed)
}

func TestEncodeModelRoundTrip(t *testing.T) {
	m, err := ParseModel([]byte(routingModel))
	require.NoError(t, err)

	raw, err := EncodeModel(m)
	require.NoError(t, err)

	again, err := ParseModel(raw)
	require.NoError(t, err)
	assert.Equal(t, m.Tables[0].Rules, again.Tables[0].Rules)
}
