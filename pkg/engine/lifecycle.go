package engine

import (
	"context"
	"fmt"

	"github.com/stepflow-io/stepflow/pkg/events"
	"github.com/stepflow-io/stepflow/pkg/models"
)

// CompleteInteractionStep records an external actor's input on a parked
// interaction step and advances the instance. Only a step currently
// waiting for input can be completed; anything else gets ErrInvalidState
// and nothing is mutated.
func (e *Engine) CompleteInteractionStep(ctx context.Context, instanceID, stepInstanceID, completedBy string, outputs map[string]any) error {
	step, err := e.persistence.StepInstances().GetByID(ctx, stepInstanceID)
	if err != nil {
		return fmt.Errorf("failed to fetch step instance %s: %w", stepInstanceID, err)
	}

	if step.WorkflowInstanceID != instanceID {
		return fmt.Errorf("step instance %s does not belong to instance %s: %w",
			stepInstanceID, instanceID, ErrInvalidState)
	}

	if step.Status != models.StepStatusWaitingForInput {
		return fmt.Errorf("step instance %s is %s, not waiting for input: %w",
			stepInstanceID, step.Status, ErrInvalidState)
	}

	instance, err := e.persistence.Instances().GetByID(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("failed to fetch instance %s: %w", instanceID, err)
	}

	if instance.Status != models.InstanceStatusWaiting {
		return fmt.Errorf("instance %s is %s, not waiting: %w", instanceID, instance.Status, ErrInvalidState)
	}

	def, err := e.persistence.Definitions().GetByID(ctx, instance.DefinitionID)
	if err != nil {
		return fmt.Errorf("failed to fetch definition %s: %w", instance.DefinitionID, err)
	}

	stepDef, found := def.StepByID(step.StepID)
	if !found {
		return fmt.Errorf("step %s missing from definition %s: %w", step.StepID, def.ID, ErrInvalidState)
	}

	if e.taskManager != nil && step.ExternalTaskID != "" {
		// A task system failure must not block the human's input.
		if err := e.taskManager.CloseTask(ctx, step.ExternalTaskID, outputs); err != nil {
			e.logger.WarnContext(ctx, "Failed to close external task",
				"external_task_id", step.ExternalTaskID, "error", err)
		}
	}

	completedAt := e.now().UTC()
	step.MergeOutput(outputs)
	step.Status = models.StepStatusCompleted
	step.CompletedBy = completedBy
	step.CompletedAt = &completedAt

	if err := e.persistence.StepInstances().Update(ctx, step); err != nil {
		return fmt.Errorf("failed to update step instance %s: %w", step.ID, err)
	}

	e.publishStepCompleted(ctx, instance, step)

	instance.MergeVariables(step.Output)
	instance.Status = models.InstanceStatusRunning
	instance.StatusReason = ""

	if err := e.persistence.Instances().Update(ctx, instance); err != nil {
		return fmt.Errorf("failed to update instance %s: %w", instance.ID, err)
	}

	e.logger.InfoContext(ctx, "Interaction step completed",
		"instance_id", instance.ID, "step_id", step.StepID, "completed_by", completedBy)

	result := &models.StepExecutionResult{Success: true, Status: models.StepStatusCompleted}

	return e.advance(ctx, def, instance, e.resolveNext(stepDef, result, instance.Variables))
}

// Cancel terminally cancels an instance. Running children are unaffected;
// cancellation does not cascade. Cancelling a terminal instance is an
// ErrInvalidState.
func (e *Engine) Cancel(ctx context.Context, instanceID, reason, cancelledBy string) error {
	instance, err := e.persistence.Instances().GetByID(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("failed to fetch instance %s: %w", instanceID, err)
	}

	if instance.Status.IsTerminal() {
		return fmt.Errorf("instance %s is already %s: %w", instanceID, instance.Status, ErrInvalidState)
	}

	e.cancelOpenTasks(ctx, instance)

	completedAt := e.now().UTC()
	instance.Status = models.InstanceStatusCancelled
	instance.StatusReason = reason
	instance.CompletedAt = &completedAt

	if err := e.persistence.Instances().Update(ctx, instance); err != nil {
		return fmt.Errorf("failed to update instance %s: %w", instance.ID, err)
	}

	e.logger.InfoContext(ctx, "Workflow instance cancelled",
		"instance_id", instance.ID, "reason", reason, "cancelled_by", cancelledBy)

	cancelled := events.InstanceCancelled{
		BaseEvent:   events.NewBaseEvent(events.InstanceCancelledEvent, instance.DefinitionID, instance.ID),
		Reason:      reason,
		CancelledBy: cancelledBy,
	}
	e.publish(ctx, instance.ID, cancelled)

	e.notifyWatchers(instance)

	return nil
}

// cancelOpenTasks closes external tasks of steps still waiting for input.
func (e *Engine) cancelOpenTasks(ctx context.Context, instance *models.WorkflowInstance) {
	if e.taskManager == nil {
		return
	}

	stepInstances, err := e.persistence.StepInstances().ListByInstance(ctx, instance.ID)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to list step instances for task cancellation",
			"instance_id", instance.ID, "error", err)

		return
	}

	for _, step := range stepInstances {
		if step.Status != models.StepStatusWaitingForInput || step.ExternalTaskID == "" {
			continue
		}

		if err := e.taskManager.CancelTask(ctx, step.ExternalTaskID); err != nil {
			e.logger.WarnContext(ctx, "Failed to cancel external task",
				"external_task_id", step.ExternalTaskID, "error", err)
		}
	}
}

// Suspend administratively pauses a non-terminal instance. The sweeper and
// interaction completion refuse to touch a suspended instance.
func (e *Engine) Suspend(ctx context.Context, instanceID, reason string) error {
	instance, err := e.persistence.Instances().GetByID(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("failed to fetch instance %s: %w", instanceID, err)
	}

	if instance.Status.IsTerminal() || instance.Status == models.InstanceStatusSuspended {
		return fmt.Errorf("instance %s is %s: %w", instanceID, instance.Status, ErrInvalidState)
	}

	instance.Status = models.InstanceStatusSuspended
	instance.StatusReason = reason

	if err := e.persistence.Instances().Update(ctx, instance); err != nil {
		return fmt.Errorf("failed to update instance %s: %w", instance.ID, err)
	}

	e.logger.InfoContext(ctx, "Workflow instance suspended", "instance_id", instance.ID, "reason", reason)

	suspended := events.InstanceSuspended{
		BaseEvent: events.NewBaseEvent(events.InstanceSuspendedEvent, instance.DefinitionID, instance.ID),
		Reason:    reason,
	}
	e.publish(ctx, instance.ID, suspended)

	return nil
}

// Resume lifts a suspension. An instance parked on a waiting step goes
// back to waiting for its actor or due time; otherwise the engine resumes
// advancing at the current step.
func (e *Engine) Resume(ctx context.Context, instanceID, resumedBy string) error {
	instance, err := e.persistence.Instances().GetByID(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("failed to fetch instance %s: %w", instanceID, err)
	}

	if instance.Status != models.InstanceStatusSuspended {
		return fmt.Errorf("instance %s is %s, not suspended: %w", instanceID, instance.Status, ErrInvalidState)
	}

	resumed := events.InstanceResumed{
		BaseEvent: events.NewBaseEvent(events.InstanceResumedEvent, instance.DefinitionID, instance.ID),
		ResumedBy: resumedBy,
	}

	if parked, err := e.parkedStep(ctx, instance); err != nil {
		return err
	} else if parked != nil {
		instance.Status = models.InstanceStatusWaiting
		instance.StatusReason = fmt.Sprintf("parked on step %s (%s)", parked.StepID, parked.Status)

		if err := e.persistence.Instances().Update(ctx, instance); err != nil {
			return fmt.Errorf("failed to update instance %s: %w", instance.ID, err)
		}

		e.publish(ctx, instance.ID, resumed)

		return nil
	}

	instance.Status = models.InstanceStatusRunning
	instance.StatusReason = ""

	if err := e.persistence.Instances().Update(ctx, instance); err != nil {
		return fmt.Errorf("failed to update instance %s: %w", instance.ID, err)
	}

	e.publish(ctx, instance.ID, resumed)

	if instance.CurrentStepID == "" {
		return e.completeInstance(ctx, instance)
	}

	def, err := e.persistence.Definitions().GetByID(ctx, instance.DefinitionID)
	if err != nil {
		return fmt.Errorf("failed to fetch definition %s: %w", instance.DefinitionID, err)
	}

	return e.advance(ctx, def, instance, instance.CurrentStepID)
}

// parkedStep returns the still-parked step instance for the instance's
// current step, if any.
func (e *Engine) parkedStep(ctx context.Context, instance *models.WorkflowInstance) (*models.StepInstance, error) {
	stepInstances, err := e.persistence.StepInstances().ListByInstance(ctx, instance.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list step instances for %s: %w", instance.ID, err)
	}

	for i := len(stepInstances) - 1; i >= 0; i-- {
		step := stepInstances[i]
		if step.StepID != instance.CurrentStepID {
			continue
		}

		if step.Status == models.StepStatusWaitingForInput || step.Status == models.StepStatusScheduled {
			return step, nil
		}
	}

	return nil, nil
}
