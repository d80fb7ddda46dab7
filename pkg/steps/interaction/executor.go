// Package interaction implements the step kind that parks a workflow until
// an external actor provides input.
package interaction

import (
	"context"
	"log/slog"

	"github.com/stepflow-io/stepflow/pkg/models"
	"github.com/stepflow-io/stepflow/pkg/steps"
	"github.com/stepflow-io/stepflow/pkg/tasks"
)

// TaskErrorOutputKey is the diagnostic output field recording a task
// creation failure. Task failures never block the step from parking.
const TaskErrorOutputKey = "external_task_error"

// Executor handles interaction steps. It never completes synchronously.
type Executor struct {
	taskManager tasks.Manager // optional
	logger      *slog.Logger
}

// NewExecutor creates an interaction executor. taskManager may be nil.
func NewExecutor(taskManager tasks.Manager, logger *slog.Logger) *Executor {
	return &Executor{
		taskManager: taskManager,
		logger:      logger.With("module", "interaction_step"),
	}
}

// CanExecute reports whether this executor handles the given kind.
func (e *Executor) CanExecute(kind models.StepKind) bool {
	return kind == models.StepKindInteraction
}

// Execute records the assignment, opens an external task when a task
// manager is configured, and parks the step as waiting for input.
func (e *Executor) Execute(ctx context.Context, step *models.StepInstance, def *models.StepDefinition, instance *models.WorkflowInstance) (*models.StepExecutionResult, error) {
	step.AssignedTo = steps.StringOption(def.Config, "assigned_to")

	output := make(map[string]any)

	if e.taskManager != nil {
		info := tasks.TaskInfo{
			WorkflowInstanceID: instance.ID,
			StepInstanceID:     step.ID,
			Title:              steps.StringOption(def.Config, "title"),
			Description:        steps.StringOption(def.Config, "description"),
			AssignedTo:         step.AssignedTo,
			Variables:          step.Input,
		}

		if info.Title == "" {
			info.Title = def.Name
		}

		externalTaskID, err := e.taskManager.CreateTask(ctx, info)
		if err != nil {
			// The workflow must still be able to proceed once a human
			// completes the step through another channel.
			e.logger.ErrorContext(ctx, "Failed to create external task",
				"step_instance_id", step.ID, "error", err)

			output[TaskErrorOutputKey] = err.Error()
		} else {
			step.ExternalTaskID = externalTaskID
			output["external_task_id"] = externalTaskID
		}
	}

	return &models.StepExecutionResult{
		Success: false,
		Status:  models.StepStatusWaitingForInput,
		Output:  output,
	}, nil
}
