package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCellMatches(t *testing.T) {
	tests := []struct {
		name  string
		cell  Cell
		value string
		want  bool
	}{
		{"literal equal", Literal("active"), "active", true},
		{"literal different", Literal("active"), "down", false},
		{"literal is case sensitive", Literal("active"), "Active", false},
		{"wildcard", Any(), "anything", true},
		{"wildcard empty value", Any(), "", true},
		{"empty literal", Literal(""), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cell.Matches(tt.value))
		})
	}
}

func TestParseCell(t *testing.T) {
	assert.Equal(t, Any(), ParseCell("-"))
	assert.Equal(t, Literal("query"), ParseCell("query"))
	assert.Equal(t, "-", Any().String())
	assert.Equal(t, "query", Literal("query").String())
}

func TestRuleMatch(t *testing.T) {
	inputs := []string{"systemStatus", "requestType"}

	t.Run("all positions match", func(t *testing.T) {
		facts := NewFacts(map[string]string{"systemStatus": "active", "requestType": "query"})
		out, ok, err := row(2, "active", "query", "route-fast").Match("d", inputs, facts)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []string{"route-fast"}, out)
	})

	t.Run("one position differs", func(t *testing.T) {
		facts := NewFacts(map[string]string{"systemStatus": "active", "requestType": "command"})
		out, ok, err := row(2, "active", "query", "route-fast").Match("d", inputs, facts)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, out)
	})

	t.Run("missing fact is an error", func(t *testing.T) {
		facts := NewFacts(map[string]string{"systemStatus": "active"})
		_, ok, err := row(2, "-", "-", "route-default").Match("d", inputs, facts)
		assert.False(t, ok)
		require.ErrorIs(t, err, ErrMissingFact)

		var evalErr *Error
		require.ErrorAs(t, err, &evalErr)
		assert.Equal(t, "d", evalErr.DecisionID)
		assert.Equal(t, "requestType", evalErr.Column)
	})
}

func TestTableEvaluateFirstMatchWins(t *testing.T) {
	table := &Table{
		ID:      "dec-overlap",
		Inputs:  []string{"a"},
		Outputs: []string{"out"},
		Rules: []Rule{
			row(1, "-", "first"),
			row(1, "x", "second"),
		},
	}

	out, hit, err := table.Evaluate(NewFacts(map[string]string{"a": "x"}))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"out": "first"}, out)
	assert.Equal(t, 0, hit.Rule)
	assert.False(t, hit.Defaulted)
}

func TestTableEvaluateWildcardAbsorption(t *testing.T) {
	table := routingTable()
	table.Rules = []Rule{row(2, "-", "-", "route-default")}

	for _, facts := range []map[string]string{
		{"systemStatus": "active", "requestType": "query"},
		{"systemStatus": "", "requestType": ""},
		{"systemStatus": "-", "requestType": "weird value", "unrelated": "x"},
	} {
		out, _, err := table.Evaluate(NewFacts(facts))
		require.NoError(t, err)
		assert.Equal(t, "route-default", out["route"])
	}
}

func TestTableEvaluateNoMatch(t *testing.T) {
	table := &Table{
		ID:      "dec-strict",
		Inputs:  []string{"a"},
		Outputs: []string{"out", "extra"},
		Rules:   []Rule{row(1, "x", "1", "2")},
	}
	facts := NewFacts(map[string]string{"a": "y"})

	t.Run("without defaults", func(t *testing.T) {
		_, _, err := table.Evaluate(facts)
		require.ErrorIs(t, err, ErrNoMatchingRule)

		var evalErr *Error
		require.ErrorAs(t, err, &evalErr)
		assert.Equal(t, "dec-strict", evalErr.DecisionID)
	})

	t.Run("with partial defaults", func(t *testing.T) {
		partial := *table
		partial.Defaults = map[string]string{"out": "fallback"}
		_, _, err := partial.Evaluate(facts)
		require.ErrorIs(t, err, ErrNoMatchingRule)
	})

	t.Run("with complete defaults", func(t *testing.T) {
		complete := *table
		complete.Defaults = map[string]string{"out": "fallback", "extra": "none"}
		out, hit, err := complete.Evaluate(facts)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"out": "fallback", "extra": "none"}, out)
		assert.True(t, hit.Defaulted)
		assert.Equal(t, -1, hit.Rule)
	})
}

func TestTableEvaluateMissingFactBeforeMatching(t *testing.T) {
	table := routingTable()
	table.Defaults = map[string]string{"route": "reject"}

	// The first rule would not match anyway, the missing column must still win.
	_, _, err := table.Evaluate(NewFacts(map[string]string{"systemStatus": "down"}))
	require.ErrorIs(t, err, ErrMissingFact)
	assert.NotErrorIs(t, err, ErrNoMatchingRule)
}

func TestTableEvaluateMultipleOutputs(t *testing.T) {
	out, hit, err := planTable().Evaluate(NewFacts(map[string]string{
		"route": "route-fast", "policy": "allow", "capacity": "light",
	}))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"plan": "single-agent", "action": "go"}, out)
	assert.Equal(t, 0, hit.Rule)
}
