package decision

import (
	"errors"
	"maps"
)

// Step records what one table contributed to a run.
type Step struct {
	DecisionID string            `json:"decision"`
	Rule       int               `json:"rule"` // -1 when no rule matched
	Defaulted  bool              `json:"defaulted,omitempty"`
	Cause      Kind              `json:"cause,omitempty"` // error that triggered the defaults
	Outputs    map[string]string `json:"outputs,omitempty"`
}

// Result is the outcome of a successful run.
type Result struct {
	Names  []string          // exported names, in export order
	Values map[string]string // exported name -> value
	Trace  []Step
}

// Option configures an Evaluator.
type Option func(*options)

type options struct {
	defaults map[string]string
	limits   Limits
}

// WithDefaults registers caller-owned fallback values for exported names.
// They take precedence over the defaults declared by the model.
func WithDefaults(defaults map[string]string) Option {
	return func(o *options) {
		if o.defaults == nil {
			o.defaults = make(map[string]string, len(defaults))
		}
		maps.Copy(o.defaults, defaults)
	}
}

// WithLimits overrides the size limits checked when the evaluator is built.
func WithLimits(l Limits) Option {
	return func(o *options) { o.limits = l }
}

// Evaluator evaluates one model. It is immutable once built and safe for
// concurrent use; every call to Evaluate owns its own fact environment.
type Evaluator struct {
	model    *Model
	order    []*Table
	defaults map[string]string
	exports  []string
}

// NewEvaluator validates m and computes its evaluation order.
func NewEvaluator(m *Model, opts ...Option) (*Evaluator, error) {
	o := options{limits: DefaultLimits()}
	for _, opt := range opts {
		opt(&o)
	}

	if err := m.ValidateWithLimits(o.limits); err != nil {
		return nil, err
	}

	order, err := Plan(m)
	if err != nil {
		return nil, err
	}

	defaults := make(map[string]string, len(m.Defaults)+len(o.defaults))
	maps.Copy(defaults, m.Defaults)
	maps.Copy(defaults, o.defaults)

	exports := append([]string(nil), m.Exports...)
	if len(exports) == 0 {
		for _, t := range order {
			exports = append(exports, t.Outputs...)
		}
	}

	return &Evaluator{
		model:    m,
		order:    order,
		defaults: defaults,
		exports:  exports,
	}, nil
}

// Run builds an evaluator for m and evaluates it once.
func Run(m *Model, initial map[string]string, exports []string, opts ...Option) (*Result, error) {
	e, err := NewEvaluator(m, opts...)
	if err != nil {
		return nil, err
	}
	return e.Evaluate(initial, exports)
}

// Model returns the model being evaluated.
func (e *Evaluator) Model() *Model { return e.model }

// Order returns the decision ids in evaluation order.
func (e *Evaluator) Order() []string {
	ids := make([]string, len(e.order))
	for i, t := range e.order {
		ids[i] = t.ID
	}
	return ids
}

// Exports returns the names exported when the caller names none.
func (e *Evaluator) Exports() []string {
	return append([]string(nil), e.exports...)
}

// Evaluate runs every table against a fresh fact environment seeded with
// initial and returns the exported values. An empty exports list means the
// evaluator's default exports.
func (e *Evaluator) Evaluate(initial map[string]string, exports []string) (*Result, error) {
	facts := NewFacts(initial)

	for _, d := range e.model.Derived {
		value, err := d.Deriver.Derive(facts.Snapshot())
		if err != nil {
			return nil, &Error{Kind: KindDerivationFailed, Name: d.Name, Detail: err.Error()}
		}
		if err := facts.insertFrom("derived fact "+d.Name, d.Name, value); err != nil {
			return nil, err
		}
	}

	trace := make([]Step, 0, len(e.order))
	for _, t := range e.order {
		step, err := e.evaluateTable(t, facts)
		if err != nil {
			return nil, err
		}
		trace = append(trace, step)
	}

	if len(exports) == 0 {
		exports = e.exports
	}
	result := &Result{
		Names:  make([]string, 0, len(exports)),
		Values: make(map[string]string, len(exports)),
		Trace:  trace,
	}
	for _, name := range exports {
		if _, dup := result.Values[name]; dup {
			continue
		}
		value, ok := facts.Get(name)
		if !ok {
			value, ok = e.defaults[name]
		}
		if !ok {
			return nil, missingFact("", name)
		}
		result.Names = append(result.Names, name)
		result.Values[name] = value
	}

	return result, nil
}

func (e *Evaluator) evaluateTable(t *Table, facts *Facts) (Step, error) {
	step := Step{DecisionID: t.ID}

	outputs, hit, err := t.Evaluate(facts)
	if err != nil {
		if !recoverable(err) || t.policy() != PolicyDefaultAndContinue {
			return step, err
		}
		var evalErr *Error
		errors.As(err, &evalErr)
		step.Rule = -1
		step.Defaulted = true
		step.Cause = evalErr.Kind
		step.Outputs = make(map[string]string, len(t.Defaults))
		for _, column := range t.Outputs {
			v, ok := t.Defaults[column]
			if !ok {
				continue
			}
			if err := facts.insertFrom(t.ID, column, v); err != nil {
				return step, err
			}
			step.Outputs[column] = v
		}
		return step, nil
	}

	step.Rule = hit.Rule
	step.Defaulted = hit.Defaulted
	step.Outputs = outputs
	for _, column := range t.Outputs {
		if err := facts.insertFrom(t.ID, column, outputs[column]); err != nil {
			return step, err
		}
	}
	return step, nil
}

// recoverable reports whether a table error may be replaced by defaults.
// A missing input column always propagates: it means the model is wired
// wrong, not that the table could not decide.
func recoverable(err error) bool {
	return errors.Is(err, ErrNoMatchingRule)
}
