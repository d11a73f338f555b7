package coretools

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/harun/stepwise/pkg/toolexecutor"
)

type calcRequest struct {
	Expression string `mapstructure:"expression"`
}

var (
	// numbers are matched first so exponents like 1e5 are not read as identifiers
	calcToken      = regexp.MustCompile(`\d+(?:\.\d*)?(?:[eE][+-]?\d+)?|\.\d+|[A-Za-z_$][A-Za-z0-9_$]*`)
	calcCharacters = regexp.MustCompile(`^[0-9A-Za-z_\s+\-*/%().,^]*$`)
)

var calcFunctions = map[string]interface{}{
	"abs":   math.Abs,
	"round": math.RoundToEven,
	"min":   variadic(math.Min, math.Inf(1)),
	"max":   variadic(math.Max, math.Inf(-1)),
	"pow":   math.Pow,
	"sqrt":  math.Sqrt,
	"log":   math.Log,
	"sin":   math.Sin,
	"cos":   math.Cos,
	"tan":   math.Tan,
	"pi":    math.Pi,
	"e":     math.E,
}

func variadic(fn func(a, b float64) float64, start float64) func(values ...float64) float64 {
	return func(values ...float64) float64 {
		out := start
		for _, v := range values {
			out = fn(out, v)
		}
		return out
	}
}

func mathCalcTool() toolexecutor.ToolSpec {
	return toolexecutor.ToolSpec{
		Name:        "math.calc",
		Description: "Evaluate an arithmetic expression. Allowed names: abs, round, min, max, pow, sqrt, log, sin, cos, tan, pi, e.",
		Parameters: []toolexecutor.ToolParameter{
			{Name: "expression", Type: "string", Description: "Mathematical expression to evaluate", Required: true},
		},
		Timeout: 5 * time.Second,
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			var req calcRequest
			if err := decodeArgs(args, &req); err != nil {
				return nil, err
			}
			return evaluate(ctx, req.Expression), nil
		},
	}
}

// evaluate runs expression in a fresh VM that only knows the allowed names
func evaluate(ctx context.Context, expression string) map[string]interface{} {
	expr := strings.TrimSpace(expression)
	if expr == "" {
		return failure("Expression cannot be empty")
	}
	for _, token := range calcToken.FindAllString(expr, -1) {
		if token[0] >= '0' && token[0] <= '9' || token[0] == '.' {
			continue
		}
		if _, ok := calcFunctions[token]; !ok {
			return failure("Operation '%s' not allowed", token)
		}
	}
	if !calcCharacters.MatchString(expr) {
		return failure("Expression contains unsupported characters")
	}

	vm := goja.New()
	for name, fn := range calcFunctions {
		if err := vm.Set(name, fn); err != nil {
			return failure("%v", err)
		}
	}

	value, err := runInterruptible(ctx, vm, expr)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return failure("Calculation timed out")
		}
		return failure("%v", err)
	}

	result := value.Export()
	out := map[string]interface{}{"expression": expression, "result": result}
	switch v := result.(type) {
	case int64:
		out["type"] = "int"
	case float64:
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return failure("Result is not a finite number: %v", v)
		}
		out["type"] = "float"
	default:
		return failure("Expression did not produce a number")
	}
	return out
}
