package eval

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"

	"github.com/harun/stepwise/pkg/agent"
)

var (
	envOnce sync.Once
	envErr  error
	celEnv  *cel.Env
)

func criteriaEnv() (*cel.Env, error) {
	envOnce.Do(func() {
		celEnv, envErr = cel.NewEnv(
			cel.Variable("result", cel.StringType),
			cel.Variable("status", cel.StringType),
			cel.Variable("steps", cel.IntType),
			ext.Strings(),
		)
	})
	return celEnv, envErr
}

// Criteria is a compiled success expression
type Criteria struct {
	expr    string
	program cel.Program
}

// CompileCriteria parses and type-checks expr. The expression must
// evaluate to a bool.
func CompileCriteria(expr string) (*Criteria, error) {
	env, err := criteriaEnv()
	if err != nil {
		return nil, fmt.Errorf("criteria environment: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCriteria, iss.Err())
	}
	if !reflect.DeepEqual(ast.OutputType(), cel.BoolType) {
		return nil, fmt.Errorf("%w: expression returns %v, want bool", ErrInvalidCriteria, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCriteria, err)
	}
	return &Criteria{expr: expr, program: prg}, nil
}

// Eval reports whether run satisfies the criteria
func (c *Criteria) Eval(run *agent.RunResult) (bool, error) {
	vars := map[string]interface{}{
		"result": "",
		"status": "",
		"steps":  int64(0),
	}
	if run != nil {
		vars["result"] = run.Result
		vars["status"] = string(run.Status)
		vars["steps"] = int64(run.Iterations)
	}

	out, _, err := c.program.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", c.expr, err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("%w: %q returned %v", ErrInvalidCriteria, c.expr, out.Type())
	}
	return ok, nil
}

// String returns the source expression
func (c *Criteria) String() string {
	return c.expr
}
