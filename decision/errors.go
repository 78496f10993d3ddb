package decision

import (
	"fmt"
	"strings"
)

// Kind classifies an evaluation failure.
type Kind string

const (
	KindMalformedModel   Kind = "MalformedModel"
	KindMalformedInput   Kind = "MalformedInput"
	KindMissingFact      Kind = "MissingFact"
	KindDuplicateOutput  Kind = "DuplicateOutput"
	KindNoMatchingRule   Kind = "NoMatchingRule"
	KindCyclicDependency Kind = "CyclicDependency"
	KindDerivationFailed Kind = "DerivationFailed"
)

// Error is the single structured error returned by parsing and evaluation.
// Only the fields relevant to Kind are populated.
type Error struct {
	Kind       Kind
	DecisionID string   // table that failed, if any
	Column     string   // missing input or export column
	Name       string   // duplicated output name or derived fact name
	IDs        []string // cycle members
	Detail     string
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrMalformedModel   = &Error{Kind: KindMalformedModel}
	ErrMalformedInput   = &Error{Kind: KindMalformedInput}
	ErrMissingFact      = &Error{Kind: KindMissingFact}
	ErrDuplicateOutput  = &Error{Kind: KindDuplicateOutput}
	ErrNoMatchingRule   = &Error{Kind: KindNoMatchingRule}
	ErrCyclicDependency = &Error{Kind: KindCyclicDependency}
	ErrDerivationFailed = &Error{Kind: KindDerivationFailed}
)

func (e *Error) Error() string {
	switch e.Kind {
	case KindMissingFact:
		if e.DecisionID == "" {
			return fmt.Sprintf("missing fact %q", e.Column)
		}
		return fmt.Sprintf("decision %s: missing fact %q", e.DecisionID, e.Column)
	case KindDuplicateOutput:
		return fmt.Sprintf("duplicate output %q", e.Name)
	case KindNoMatchingRule:
		return fmt.Sprintf("decision %s: no matching rule", e.DecisionID)
	case KindCyclicDependency:
		return fmt.Sprintf("cyclic dependency between decisions [%s]", strings.Join(e.IDs, ", "))
	case KindDerivationFailed:
		return fmt.Sprintf("derived fact %q: %s", e.Name, e.Detail)
	default:
		if e.Detail == "" {
			return string(e.Kind)
		}
		return fmt.Sprintf("%s: %s", strings.ToLower(splitCamel(string(e.Kind))), e.Detail)
	}
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Message returns a human readable description without the kind prefix.
func (e *Error) Message() string {
	if e.Detail != "" && (e.Kind == KindMalformedModel || e.Kind == KindMalformedInput) {
		return e.Detail
	}
	return e.Error()
}

func malformed(format string, args ...any) *Error {
	return &Error{Kind: KindMalformedModel, Detail: fmt.Sprintf(format, args...)}
}

func missingFact(decisionID, column string) *Error {
	return &Error{Kind: KindMissingFact, DecisionID: decisionID, Column: column}
}

func duplicateOutput(name, detail string) *Error {
	return &Error{Kind: KindDuplicateOutput, Name: name, Detail: detail}
}

// splitCamel turns "MalformedModel" into "Malformed Model".
func splitCamel(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
