package decision

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflow-io/stepflow/pkg/expression"
	"github.com/stepflow-io/stepflow/pkg/models"
)

type fakeInvoker struct {
	result any
	err    error
}

func (f *fakeInvoker) Invoke(context.Context, string, string, map[string]any) (any, error) {
	return f.result, f.err
}

func newTestExecutor(invoker *fakeInvoker) *Executor {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if invoker == nil {
		invoker = &fakeInvoker{}
	}

	return NewExecutor(expression.NewEvaluator(logger), invoker, logger)
}

func decide(t *testing.T, executor *Executor, config, variables map[string]any) *models.StepExecutionResult {
	t.Helper()

	def := &models.StepDefinition{ID: "route", Kind: models.StepKindDecision, Config: config}
	instance := &models.WorkflowInstance{ID: "wi-1", Variables: variables}

	result, err := executor.Execute(context.Background(), &models.StepInstance{ID: "si-1"}, def, instance)
	require.NoError(t, err)

	return result
}

func approvalRoutes() []any {
	return []any{
		map[string]any{"name": "manual", "next_step_id": "manual-review", "condition": "amount > 100"},
		map[string]any{"name": "auto", "next_step_id": "auto-approve"},
	}
}

func TestExecuteConditionModeFirstMatchWins(t *testing.T) {
	executor := newTestExecutor(nil)

	t.Run("condition holds", func(t *testing.T) {
		result := decide(t, executor, map[string]any{"routes": approvalRoutes()},
			map[string]any{"amount": 150})

		assert.True(t, result.Success)
		require.NotNil(t, result.NextStepID)
		assert.Equal(t, "manual-review", *result.NextStepID)
		assert.Equal(t, "manual-review", result.Output["selected_step_id"])
	})

	t.Run("falls through to unconditional route", func(t *testing.T) {
		result := decide(t, executor, map[string]any{"routes": approvalRoutes()},
			map[string]any{"amount": 50})

		require.NotNil(t, result.NextStepID)
		assert.Equal(t, "auto-approve", *result.NextStepID)
	})
}

func TestExecuteConditionErrorTreatedAsFalse(t *testing.T) {
	executor := newTestExecutor(nil)

	routes := []any{
		map[string]any{"next_step_id": "broken", "condition": "not_a_number + )"},
		map[string]any{"next_step_id": "fallback"},
	}

	result := decide(t, executor, map[string]any{"routes": routes}, nil)

	require.NotNil(t, result.NextStepID)
	assert.Equal(t, "fallback", *result.NextStepID)
}

func TestExecuteDefaultRoute(t *testing.T) {
	executor := newTestExecutor(nil)

	routes := []any{
		map[string]any{"next_step_id": "manual-review", "condition": "amount > 100"},
	}

	result := decide(t, executor, map[string]any{
		"routes":               routes,
		"default_next_step_id": "auto-approve",
	}, map[string]any{"amount": 10})

	require.NotNil(t, result.NextStepID)
	assert.Equal(t, "auto-approve", *result.NextStepID)
}

func TestExecuteNoRouteMatchedFails(t *testing.T) {
	executor := newTestExecutor(nil)

	routes := []any{
		map[string]any{"next_step_id": "manual-review", "condition": "amount > 100"},
	}

	result := decide(t, executor, map[string]any{"routes": routes}, map[string]any{"amount": 10})

	assert.False(t, result.Success)
	assert.Equal(t, models.StepStatusFailed, result.Status)
	assert.Contains(t, result.Error, "no decision route matched")
}

func TestExecuteServiceMode(t *testing.T) {
	t.Run("string result is the next step id", func(t *testing.T) {
		executor := newTestExecutor(&fakeInvoker{result: "manual-review"})

		result := decide(t, executor, map[string]any{"service": "risk"}, nil)

		require.NotNil(t, result.NextStepID)
		assert.Equal(t, "manual-review", *result.NextStepID)
	})

	t.Run("structured result with next_step_id", func(t *testing.T) {
		executor := newTestExecutor(&fakeInvoker{result: map[string]any{"next_step_id": "auto-approve"}})

		result := decide(t, executor, map[string]any{"service": "risk"}, nil)

		require.NotNil(t, result.NextStepID)
		assert.Equal(t, "auto-approve", *result.NextStepID)
	})

	t.Run("route name matched case-insensitively", func(t *testing.T) {
		executor := newTestExecutor(&fakeInvoker{result: map[string]any{"route_name": "MANUAL"}})

		result := decide(t, executor, map[string]any{
			"service": "risk",
			"routes":  approvalRoutes(),
		}, nil)

		require.NotNil(t, result.NextStepID)
		assert.Equal(t, "manual-review", *result.NextStepID)
	})

	t.Run("unknown route name fails", func(t *testing.T) {
		executor := newTestExecutor(&fakeInvoker{result: map[string]any{"route_name": "nope"}})

		result := decide(t, executor, map[string]any{
			"service": "risk",
			"routes":  approvalRoutes(),
		}, nil)

		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "unknown route")
	})

	t.Run("service error fails", func(t *testing.T) {
		executor := newTestExecutor(&fakeInvoker{err: errors.New("risk service down")})

		result := decide(t, executor, map[string]any{"service": "risk"}, nil)

		assert.False(t, result.Success)
		assert.Equal(t, models.StepStatusFailed, result.Status)
		assert.Contains(t, result.Error, "risk service down")
	})
}
