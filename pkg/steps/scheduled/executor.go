// Package scheduled implements the step kind that parks a workflow until a
// computed point in time.
package scheduled

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stepflow-io/stepflow/pkg/expression"
	"github.com/stepflow-io/stepflow/pkg/models"
	"github.com/stepflow-io/stepflow/pkg/steps"
)

// ErrNoScheduleSource indicates a scheduled step with no configured time source.
var ErrNoScheduleSource = errors.New("scheduled step has no schedule source configured")

// Executor handles scheduled steps. The target time comes from, in
// priority order: an explicit timestamp ("at"), a variable holding one
// ("at_variable"), or an expression ("at_expression").
type Executor struct {
	evaluator expression.Evaluator
	logger    *slog.Logger
	now       func() time.Time
}

// NewExecutor creates a scheduled executor.
func NewExecutor(evaluator expression.Evaluator, logger *slog.Logger) *Executor {
	return &Executor{
		evaluator: evaluator,
		logger:    logger.With("module", "scheduled_step"),
		now:       time.Now,
	}
}

// CanExecute reports whether this executor handles the given kind.
func (e *Executor) CanExecute(kind models.StepKind) bool {
	return kind == models.StepKindScheduled
}

// Execute resolves the target time and either passes through immediately
// (past target), skips (past target with skip_if_past), or parks the step
// as scheduled for the sweeper.
func (e *Executor) Execute(ctx context.Context, step *models.StepInstance, def *models.StepDefinition, instance *models.WorkflowInstance) (*models.StepExecutionResult, error) {
	target, err := e.resolveTarget(def.Config, instance.Variables)
	if err != nil {
		return models.FailedResult(err.Error()), nil
	}

	now := e.now().UTC()

	if !target.After(now) {
		if steps.BoolOption(def.Config, "skip_if_past") {
			e.logger.InfoContext(ctx, "Schedule target already past, skipping step",
				"step_instance_id", step.ID, "target", target)

			return models.SkippedResult(nil), nil
		}

		// Already satisfied: proceed as if the timer just fired.
		return models.CompletedResult(nil), nil
	}

	step.DueAt = &target

	return &models.StepExecutionResult{
		Success: false,
		Status:  models.StepStatusScheduled,
		DueAt:   &target,
	}, nil
}

// resolveTarget picks the first configured schedule source.
func (e *Executor) resolveTarget(config, variables map[string]any) (time.Time, error) {
	if at := steps.StringOption(config, "at"); at != "" {
		target, err := parseTimestamp(at)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid schedule timestamp %q: %w", at, err)
		}

		return target, nil
	}

	if name := steps.StringOption(config, "at_variable"); name != "" {
		value, ok := variables[name]
		if !ok {
			return time.Time{}, fmt.Errorf("schedule variable %q is not set", name)
		}

		target, err := coerceTimestamp(value)
		if err != nil {
			return time.Time{}, fmt.Errorf("schedule variable %q: %w", name, err)
		}

		return target, nil
	}

	if expr := steps.StringOption(config, "at_expression"); expr != "" {
		value, err := e.evaluator.Evaluate(expr, variables)
		if err != nil {
			return time.Time{}, fmt.Errorf("schedule expression failed: %w", err)
		}

		target, err := coerceTimestamp(value)
		if err != nil {
			return time.Time{}, fmt.Errorf("schedule expression result: %w", err)
		}

		return target, nil
	}

	return time.Time{}, ErrNoScheduleSource
}

func coerceTimestamp(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		return parseTimestamp(v)
	default:
		return time.Time{}, fmt.Errorf("value %v does not hold a timestamp", value)
	}
}

func parseTimestamp(raw string) (time.Time, error) {
	target, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}

	return target.UTC(), nil
}
