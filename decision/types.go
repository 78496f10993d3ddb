// Package decision evaluates declarative decision models: ordered graphs of
// decision tables whose rules match string facts with literal or wildcard
// cells. Tables consume the outputs of earlier tables, so a model is
// evaluated in dependency order against an append-only fact environment.
package decision

// Wildcard is the cell literal that matches any fact value. A fact whose
// value is "-" therefore only matches wildcard cells.
const Wildcard = "-"

// Cell is one input cell of a rule: either a literal or the wildcard.
type Cell struct {
	Value string
	Any   bool
}

// Literal returns a cell matching exactly v.
func Literal(v string) Cell { return Cell{Value: v} }

// Any returns the wildcard cell.
func Any() Cell { return Cell{Any: true} }

// ParseCell interprets the external cell syntax, where "-" is the wildcard.
func ParseCell(raw string) Cell {
	if raw == Wildcard {
		return Any()
	}
	return Literal(raw)
}

// String renders the cell in its external syntax.
func (c Cell) String() string {
	if c.Any {
		return Wildcard
	}
	return c.Value
}

// Rule is a row of a decision table.
type Rule struct {
	Inputs  []Cell
	Outputs []string
}

// Policy decides what happens when a table fails during a run.
type Policy string

const (
	// PolicyPropagate aborts the run with the table's error.
	PolicyPropagate Policy = "propagate"
	// PolicyDefaultAndContinue substitutes the table's defaults and keeps going.
	PolicyDefaultAndContinue Policy = "default-and-continue"
)

// Valid reports whether p is a known policy. The zero value means propagate.
func (p Policy) Valid() bool {
	return p == "" || p == PolicyPropagate || p == PolicyDefaultAndContinue
}

// Table is a named decision table with a first-match-wins hit policy.
type Table struct {
	ID       string
	Inputs   []string
	Outputs  []string
	Rules    []Rule
	Defaults map[string]string // per output column, optional
	Policy   Policy
}

// Deriver computes a derived fact from the facts known so far.
type Deriver interface {
	Derive(facts map[string]string) (string, error)
}

// DerivedFact is a fact computed before any table runs.
type DerivedFact struct {
	Name       string
	Expression string
	Deriver    Deriver
}

// Model is an ordered set of decision tables. A Model must not be mutated
// once it has been handed to an Evaluator.
type Model struct {
	Tables   []*Table
	Defaults map[string]string
	Exports  []string
	Derived  []DerivedFact
}

// Table returns the table with the given id.
func (m *Model) Table(id string) (*Table, bool) {
	for _, t := range m.Tables {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// Limits bound the size of a model so worst-case evaluation cost is known
// before anything runs.
type Limits struct {
	MaxDecisions int
	MaxRules     int // per table
	MaxColumns   int // inputs + outputs per table
	MaxCellBytes int
}

// DefaultLimits returns the limits applied by Validate.
func DefaultLimits() Limits {
	return Limits{
		MaxDecisions: 256,
		MaxRules:     4096,
		MaxColumns:   64,
		MaxCellBytes: 1024,
	}
}
