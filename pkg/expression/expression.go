// Package expression provides evaluation of boolean and value expressions
// over a workflow instance's variable map.
package expression

import (
	"fmt"
	"log/slog"

	"github.com/expr-lang/expr"
)

// Evaluator evaluates expressions against a variable map.
type Evaluator interface {
	// EvaluateCondition evaluates a boolean expression. A condition that
	// cannot be compiled or evaluated is treated as false, never as an
	// error: a malformed route guard must not abort the step.
	EvaluateCondition(condition string, variables map[string]any) bool

	// Evaluate evaluates a value expression and returns its result.
	Evaluate(expression string, variables map[string]any) (any, error)
}

// ExprEvaluator implements Evaluator using expr-lang.
type ExprEvaluator struct {
	logger *slog.Logger
}

// NewEvaluator creates an expression evaluator.
func NewEvaluator(logger *slog.Logger) *ExprEvaluator {
	return &ExprEvaluator{logger: logger.With("module", "expression")}
}

// EvaluateCondition evaluates a boolean expression against the variables.
func (e *ExprEvaluator) EvaluateCondition(condition string, variables map[string]any) bool {
	if condition == "" {
		return true
	}

	env := envFromVariables(variables)

	program, err := expr.Compile(condition, expr.Env(env), expr.AsBool())
	if err != nil {
		e.logger.Warn("Condition failed to compile, treating as false", "condition", condition, "error", err)

		return false
	}

	output, err := expr.Run(program, env)
	if err != nil {
		e.logger.Warn("Condition failed to evaluate, treating as false", "condition", condition, "error", err)

		return false
	}

	result, ok := output.(bool)
	if !ok {
		e.logger.Warn("Condition did not evaluate to a boolean, treating as false", "condition", condition)

		return false
	}

	return result
}

// Evaluate evaluates a value expression against the variables.
func (e *ExprEvaluator) Evaluate(expression string, variables map[string]any) (any, error) {
	env := envFromVariables(variables)

	program, err := expr.Compile(expression, expr.Env(env))
	if err != nil {
		return nil, fmt.Errorf("failed to compile expression %q: %w", expression, err)
	}

	output, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression %q: %w", expression, err)
	}

	return output, nil
}

// envFromVariables copies the variable map so an expression can never mutate
// instance state through the environment.
func envFromVariables(variables map[string]any) map[string]any {
	env := make(map[string]any, len(variables))
	for k, v := range variables {
		env[k] = v
	}

	return env
}
