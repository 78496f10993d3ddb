package adapter

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/liamcoop/decisions/decision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInput(t *testing.T) {
	facts, err := ParseInput([]byte(`{"systemStatus":"active","requestType":"query"}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"systemStatus": "active", "requestType": "query"}, facts)
}

func TestParseInputRejectsBadRecords(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{"empty", ``, "empty"},
		{"array", `["a"]`, "JSON object"},
		{"null", `null`, "got null"},
		{"number value", `{"agentLoad": 3}`, `fact "agentLoad" is float64`},
		{"nested value", `{"a": "x", "b": {"c": "d"}}`, `fact "b"`},
		{"null value", `{"a": null}`, `fact "a" is null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseInput([]byte(tt.raw))
			require.ErrorIs(t, err, decision.ErrMalformedInput)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRenderError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorObject
	}{
		{
			name: "missing fact",
			err:  &decision.Error{Kind: decision.KindMissingFact, DecisionID: "d1", Column: "c"},
			want: ErrorObject{Kind: "MissingFact", Detail: `decision d1: missing fact "c"`, Decision: "d1", Column: "c"},
		},
		{
			name: "cycle",
			err:  &decision.Error{Kind: decision.KindCyclicDependency, IDs: []string{"a", "b"}},
			want: ErrorObject{Kind: "CyclicDependency", Detail: "cyclic dependency between decisions [a, b]", IDs: []string{"a", "b"}},
		},
		{
			name: "malformed model keeps the bare detail",
			err:  &decision.Error{Kind: decision.KindMalformedModel, Detail: "model declares no decisions"},
			want: ErrorObject{Kind: "MalformedModel", Detail: "model declares no decisions"},
		},
		{
			name: "foreign error",
			err:  errors.New("boom"),
			want: ErrorObject{Kind: KindInternal, Detail: "boom"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var env ErrorEnvelope
			require.NoError(t, json.Unmarshal(RenderError(tt.err), &env))
			assert.Equal(t, tt.want, env.Error)
		})
	}
}

func TestRenderResult(t *testing.T) {
	out, err := RenderResult(&decision.Result{
		Names:  []string{"plan", "action"},
		Values: map[string]string{"plan": "single-agent", "action": "go"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"plan":"single-agent","action":"go"}`, string(out))

	_, err = RenderResult(nil)
	assert.Error(t, err)
}
