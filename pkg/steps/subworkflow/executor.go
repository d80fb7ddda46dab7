// Package subworkflow implements the step kind that starts a nested
// workflow instance and optionally waits for it to finish.
package subworkflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stepflow-io/stepflow/pkg/models"
	"github.com/stepflow-io/stepflow/pkg/steps"
)

// ErrNoDefinitionConfigured indicates a sub-workflow step without a child
// definition id.
var ErrNoDefinitionConfigured = errors.New("sub-workflow step has no definition configured")

// OutputInstanceIDKey is the output field carrying the child instance id.
const OutputInstanceIDKey = "sub_workflow_instance_id"

const defaultWaitTimeout = 2 * time.Minute

// Orchestrator is the slice of the execution engine the bridge needs:
// starting a child instance and waiting for it to reach a terminal
// status. WaitForInstance must respect context cancellation, which is how
// the bounded-wait contract is enforced.
type Orchestrator interface {
	StartInstance(ctx context.Context, definitionID string, variables map[string]any, correlationID, createdBy string) (string, error)
	WaitForInstance(ctx context.Context, instanceID string) (*models.WorkflowInstance, error)
}

// Executor handles sub-workflow steps.
type Executor struct {
	orchestrator Orchestrator
	logger       *slog.Logger
}

// NewExecutor creates a sub-workflow executor.
func NewExecutor(orchestrator Orchestrator, logger *slog.Logger) *Executor {
	return &Executor{
		orchestrator: orchestrator,
		logger:       logger.With("module", "subworkflow_step"),
	}
}

// CanExecute reports whether this executor handles the given kind.
func (e *Executor) CanExecute(kind models.StepKind) bool {
	return kind == models.StepKindSubWorkflow
}

// Execute maps the configured parent variables into a fresh child variable
// map, starts the child through the engine and, when configured to wait,
// blocks until the child reaches a terminal status or the wait timeout
// expires. A timeout counts as a non-successful child outcome.
func (e *Executor) Execute(ctx context.Context, step *models.StepInstance, def *models.StepDefinition, instance *models.WorkflowInstance) (*models.StepExecutionResult, error) {
	definitionID := steps.StringOption(def.Config, "definition_id")
	if definitionID == "" {
		return models.FailedResult(ErrNoDefinitionConfigured.Error()), nil
	}

	childVariables := mapVariables(steps.StringMapOption(def.Config, "inputs"), instance.Variables)

	childID, err := e.orchestrator.StartInstance(ctx, definitionID, childVariables, instance.CorrelationID, "subworkflow:"+instance.ID)
	if err != nil {
		return e.childFailure(def, nil, fmt.Sprintf("failed to start sub-workflow %s: %v", definitionID, err)), nil
	}

	output := map[string]any{OutputInstanceIDKey: childID}

	if !steps.BoolOption(def.Config, "wait_for_completion") {
		return models.CompletedResult(output), nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, steps.DurationOption(def.Config, "wait_timeout", defaultWaitTimeout))
	defer cancel()

	child, err := e.orchestrator.WaitForInstance(waitCtx, childID)
	if err != nil {
		e.logger.WarnContext(ctx, "Sub-workflow wait ended without completion",
			"child_instance_id", childID, "error", err)

		message := fmt.Sprintf("sub-workflow %s did not complete: %v", childID, err)
		result := e.childFailure(def, output, message)

		if errors.Is(err, context.DeadlineExceeded) && !result.Success {
			result.Status = models.StepStatusTimeout
		}

		return result, nil
	}

	if child.Status != models.InstanceStatusCompleted {
		return e.childFailure(def, output, fmt.Sprintf("sub-workflow %s ended %s", childID, child.Status)), nil
	}

	for childName, parentName := range steps.StringMapOption(def.Config, "outputs") {
		if value, ok := child.Variables[childName]; ok {
			output[parentName] = value
		}
	}

	return models.CompletedResult(output), nil
}

// childFailure routes to the configured error step as a handled failure,
// or fails the parent step when no error route exists. output carries the
// child instance id once a child was started, so either branch records
// which child went wrong.
func (e *Executor) childFailure(def *models.StepDefinition, output map[string]any, message string) *models.StepExecutionResult {
	if errorNext := steps.StringOption(def.Config, "error_next_step_id"); errorNext != "" {
		routed := models.RoutedResult(errorNext, map[string]any{"error": message})
		for k, v := range output {
			routed.Output[k] = v
		}

		return routed
	}

	failed := models.FailedResult(message)
	failed.Output = output

	return failed
}

// mapVariables applies the parent-to-child name mapping to build the child
// variable map. Unset parent variables are skipped.
func mapVariables(mapping map[string]string, parentVariables map[string]any) map[string]any {
	childVariables := make(map[string]any, len(mapping))

	for parentName, childName := range mapping {
		if value, ok := parentVariables[parentName]; ok {
			childVariables[childName] = value
		}
	}

	return childVariables
}
