package engine

import (
	"context"

	"github.com/stepflow-io/stepflow/pkg/models"
)

// ProcessDueScheduledSteps re-drives every step parked as scheduled whose
// due time has passed: fired timers complete and the chain continues,
// parked business retries re-execute in place. The sweep is idempotent;
// a step another sweep already settled is skipped. It returns the number
// of steps advanced.
func (e *Engine) ProcessDueScheduledSteps(ctx context.Context) (int, error) {
	due, err := e.persistence.StepInstances().ListScheduledDueBefore(ctx, e.now().UTC())
	if err != nil {
		return 0, err
	}

	processed := 0

	for _, step := range due {
		if step.Status != models.StepStatusScheduled {
			continue
		}

		advanced, err := e.processDueStep(ctx, step)
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to process due step",
				"step_instance_id", step.ID, "instance_id", step.WorkflowInstanceID, "error", err)

			continue
		}

		if advanced {
			processed++
		}
	}

	if processed > 0 {
		e.logger.InfoContext(ctx, "Processed due scheduled steps", "count", processed)
	}

	return processed, nil
}

func (e *Engine) processDueStep(ctx context.Context, step *models.StepInstance) (bool, error) {
	instance, err := e.persistence.Instances().GetByID(ctx, step.WorkflowInstanceID)
	if err != nil {
		return false, err
	}

	// Suspended instances keep their due steps until resumed; terminal
	// instances never advance again.
	if instance.Status != models.InstanceStatusWaiting {
		return false, nil
	}

	def, err := e.persistence.Definitions().GetByID(ctx, instance.DefinitionID)
	if err != nil {
		return false, err
	}

	stepDef, found := def.StepByID(step.StepID)
	if !found {
		return true, e.failStep(ctx, instance, step, "step definition no longer exists")
	}

	instance.Status = models.InstanceStatusRunning
	instance.StatusReason = ""

	if err := e.persistence.Instances().Update(ctx, instance); err != nil {
		return false, err
	}

	if step.Kind == models.StepKindScheduled {
		return true, e.fireScheduledStep(ctx, def, instance, stepDef, step)
	}

	// A parked retry: re-execute the same step instance in place.
	next, running, err := e.executeStep(ctx, def, instance, stepDef, step)
	if err != nil || !running {
		return true, err
	}

	return true, e.advance(ctx, def, instance, next)
}

// fireScheduledStep completes a timer whose due time arrived and advances
// past it.
func (e *Engine) fireScheduledStep(ctx context.Context, def *models.WorkflowDefinition, instance *models.WorkflowInstance, stepDef *models.StepDefinition, step *models.StepInstance) error {
	completedAt := e.now().UTC()
	step.Status = models.StepStatusCompleted
	step.CompletedAt = &completedAt

	if err := e.persistence.StepInstances().Update(ctx, step); err != nil {
		return err
	}

	e.publishStepCompleted(ctx, instance, step)

	result := &models.StepExecutionResult{Success: true, Status: models.StepStatusCompleted}

	return e.advance(ctx, def, instance, e.resolveNext(stepDef, result, instance.Variables))
}
