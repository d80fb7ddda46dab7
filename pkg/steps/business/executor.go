// Package business implements the step kind that invokes named business
// services and maps their results back into workflow variables.
package business

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/stepflow-io/stepflow/pkg/dispatch"
	"github.com/stepflow-io/stepflow/pkg/models"
	"github.com/stepflow-io/stepflow/pkg/steps"
)

// ErrNoServiceConfigured indicates a business step without a service name.
var ErrNoServiceConfigured = errors.New("business step has no service configured")

const defaultRetryDelay = 30 * time.Second

// Executor handles business steps.
type Executor struct {
	invoker dispatch.Invoker
	logger  *slog.Logger
	now     func() time.Time
}

// NewExecutor creates a business executor.
func NewExecutor(invoker dispatch.Invoker, logger *slog.Logger) *Executor {
	return &Executor{
		invoker: invoker,
		logger:  logger.With("module", "business_step"),
		now:     time.Now,
	}
}

// CanExecute reports whether this executor handles the given kind.
func (e *Executor) CanExecute(kind models.StepKind) bool {
	return kind == models.StepKindBusiness
}

// Execute resolves the configured input bindings, invokes the service and
// maps the result into output variables. A failing invocation is retried
// up to the configured budget by parking the step as scheduled with a
// backoff due time; an exhausted budget routes to the error step when one
// is configured, otherwise fails the step.
func (e *Executor) Execute(ctx context.Context, step *models.StepInstance, def *models.StepDefinition, instance *models.WorkflowInstance) (*models.StepExecutionResult, error) {
	service := steps.StringOption(def.Config, "service")
	if service == "" {
		return models.FailedResult(ErrNoServiceConfigured.Error()), nil
	}

	method := steps.StringOption(def.Config, "method")
	params := steps.ResolveBindings(steps.MapOption(def.Config, "inputs"), instance.Variables)

	result, err := e.invoker.Invoke(ctx, service, method, params)
	if err != nil {
		return e.handleInvocationError(ctx, step, def, err), nil
	}

	output := MapOutputs(steps.StringMapOption(def.Config, "outputs"), result)

	return models.CompletedResult(output), nil
}

func (e *Executor) handleInvocationError(ctx context.Context, step *models.StepInstance, def *models.StepDefinition, invokeErr error) *models.StepExecutionResult {
	maxRetries := steps.IntOption(def.Config, "max_retries", 0)

	if step.RetryCount < maxRetries {
		step.RetryCount++

		delay := steps.DurationOption(def.Config, "retry_delay", defaultRetryDelay)
		dueAt := e.now().UTC().Add(delay)
		step.DueAt = &dueAt

		e.logger.WarnContext(ctx, "Business step failed, scheduling retry",
			"step_instance_id", step.ID,
			"retry", step.RetryCount,
			"max_retries", maxRetries,
			"due_at", dueAt,
			"error", invokeErr)

		return &models.StepExecutionResult{
			Success: false,
			Status:  models.StepStatusScheduled,
			Error:   invokeErr.Error(),
			DueAt:   &dueAt,
		}
	}

	if errorNext := steps.StringOption(def.Config, "error_next_step_id"); errorNext != "" {
		// Handled failure: a normal transition to the error route, not a
		// workflow failure.
		e.logger.WarnContext(ctx, "Business step failed, taking error route",
			"step_instance_id", step.ID, "error_next_step_id", errorNext, "error", invokeErr)

		return models.RoutedResult(errorNext, map[string]any{"error": invokeErr.Error()})
	}

	return models.FailedResult(invokeErr.Error())
}

// MapOutputs applies the configured field-to-variable mapping to a service
// result. A result that is not a field map is exposed as the single field
// "result".
func MapOutputs(outputs map[string]string, result any) map[string]any {
	if len(outputs) == 0 {
		return nil
	}

	fields, ok := result.(map[string]any)
	if !ok {
		fields = map[string]any{"result": result}
	}

	mapped := make(map[string]any, len(outputs))

	for field, variable := range outputs {
		if value, present := fields[field]; present {
			mapped[variable] = value
		}
	}

	return mapped
}
