package adapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/liamcoop/decisions/decision"
)

// ParseInput parses a flat JSON object of string facts.
func ParseInput(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, malformedInput("input record is empty")
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, malformedInput("input record must be a JSON object: %v", err)
	}
	if obj == nil {
		return nil, malformedInput("input record must be a JSON object, got null")
	}
	return FactsFromMap(obj)
}

// FactsFromMap converts decoded JSON facts into string facts. Only string
// values are accepted.
func FactsFromMap(obj map[string]any) (map[string]string, error) {
	facts := make(map[string]string, len(obj))
	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	// Sorted so the reported offender does not depend on map order.
	sort.Strings(names)

	for _, name := range names {
		s, ok := obj[name].(string)
		if !ok {
			return nil, malformedInput("fact %q is %s, expected a string", name, describe(obj[name]))
		}
		facts[name] = s
	}
	return facts, nil
}

// RenderResult serializes the exported values as a flat JSON object.
func RenderResult(res *decision.Result) ([]byte, error) {
	if res == nil {
		return nil, errors.New("nil result")
	}
	return json.Marshal(res.Values)
}

// ErrorObject is the structured error contract.
type ErrorObject struct {
	Kind     string   `json:"kind"`
	Detail   string   `json:"detail"`
	Decision string   `json:"decision,omitempty"`
	Column   string   `json:"column,omitempty"`
	Name     string   `json:"name,omitempty"`
	IDs      []string `json:"ids,omitempty"`
}

// ErrorEnvelope wraps an ErrorObject as {"error": {...}}.
type ErrorEnvelope struct {
	Error ErrorObject `json:"error"`
}

// KindInternal labels errors that did not come from the decision package.
const KindInternal = "Internal"

// ErrorBody converts err into the structured error contract.
func ErrorBody(err error) ErrorEnvelope {
	var evalErr *decision.Error
	if !errors.As(err, &evalErr) {
		return ErrorEnvelope{Error: ErrorObject{Kind: KindInternal, Detail: err.Error()}}
	}
	return ErrorEnvelope{Error: ErrorObject{
		Kind:     string(evalErr.Kind),
		Detail:   evalErr.Message(),
		Decision: evalErr.DecisionID,
		Column:   evalErr.Column,
		Name:     evalErr.Name,
		IDs:      evalErr.IDs,
	}}
}

// RenderError serializes err as {"error": {"kind": ..., "detail": ...}}.
func RenderError(err error) []byte {
	b, marshalErr := json.Marshal(ErrorBody(err))
	if marshalErr != nil {
		return []byte(`{"error":{"kind":"Internal","detail":"failed to render error"}}`)
	}
	return b
}

func malformedInput(format string, args ...any) error {
	return &decision.Error{Kind: decision.KindMalformedInput, Detail: fmt.Sprintf(format, args...)}
}
