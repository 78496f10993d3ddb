package adapter

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/liamcoop/decisions/decision"
)

// derivedCostLimit caps the runtime cost of one derived-fact expression.
const derivedCostLimit = 100000

// Derived-fact expressions see the facts known so far as `facts`.
var derivedEnv = sync.OnceValues(func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("facts", cel.MapType(cel.StringType, cel.StringType)),
	)
})

// celDeriver evaluates a compiled CEL program into a string fact.
type celDeriver struct {
	expression string
	program    cel.Program
}

// CompileDerived compiles a derived-fact expression. The expression must
// type-check to a string.
func CompileDerived(expression string) (decision.Deriver, error) {
	if expression == "" {
		return nil, fmt.Errorf("expression is empty")
	}

	env, err := derivedEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.StringType) {
		return nil, fmt.Errorf("expression has type %s, expected string", ast.OutputType())
	}

	prog, err := env.Program(ast, cel.CostLimit(derivedCostLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}

	return &celDeriver{expression: expression, program: prog}, nil
}

// Derive implements decision.Deriver.
func (d *celDeriver) Derive(facts map[string]string) (string, error) {
	out, _, err := d.program.Eval(map[string]any{"facts": facts})
	if err != nil {
		return "", err
	}
	s, ok := out.Value().(string)
	if !ok {
		return "", fmt.Errorf("expression returned %s, expected string", out.Type().TypeName())
	}
	return s, nil
}
