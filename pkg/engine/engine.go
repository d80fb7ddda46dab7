// Package engine drives workflow instances: it starts them, advances them
// step by step until they park or finish, and re-drives parked steps when
// their due time arrives or an external actor completes them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stepflow-io/stepflow/pkg/eventbus"
	"github.com/stepflow-io/stepflow/pkg/otelhelper"
	"github.com/stepflow-io/stepflow/pkg/events"
	"github.com/stepflow-io/stepflow/pkg/expression"
	"github.com/stepflow-io/stepflow/pkg/models"
	"github.com/stepflow-io/stepflow/pkg/persistence"
	"github.com/stepflow-io/stepflow/pkg/steps"
	"github.com/stepflow-io/stepflow/pkg/tasks"
)

// ErrInvalidState indicates an operation that the target's current status
// does not allow, completing a step that is not waiting for input, for
// example. The target is left untouched.
var ErrInvalidState = errors.New("operation not allowed in current state")

const tracerName = "github.com/stepflow-io/stepflow/pkg/engine"

// Engine advances workflow instances synchronously: one call to
// StartInstance runs the chain of steps until the instance parks on a
// waiting step or reaches a terminal status.
type Engine struct {
	persistence persistence.Persistence
	registry    *steps.Registry
	evaluator   expression.Evaluator
	eventBus    eventbus.EventPublisher // optional
	taskManager tasks.Manager           // optional
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time

	watchersMu sync.Mutex
	watchers   map[string][]chan *models.WorkflowInstance
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithEventBus makes the engine publish lifecycle events.
func WithEventBus(bus eventbus.EventPublisher) Option {
	return func(e *Engine) { e.eventBus = bus }
}

// WithTaskManager makes the engine close external tasks when interaction
// steps complete.
func WithTaskManager(manager tasks.Manager) Option {
	return func(e *Engine) { e.taskManager = manager }
}

// NewEngine creates a workflow engine.
func NewEngine(p persistence.Persistence, registry *steps.Registry, evaluator expression.Evaluator, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		persistence: p,
		registry:    registry,
		evaluator:   evaluator,
		logger:      logger.With("module", "engine"),
		tracer:      otel.Tracer(tracerName),
		now:         time.Now,
		watchers:    make(map[string][]chan *models.WorkflowInstance),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// StartInstance creates a new instance of the given definition and advances
// it until it parks or finishes. It returns the new instance id; callers
// needing the final state read it back or use WaitForInstance.
func (e *Engine) StartInstance(ctx context.Context, definitionID string, variables map[string]any, correlationID, createdBy string) (string, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.start_instance",
		attribute.String(otelhelper.DefinitionIDKey, definitionID))
	defer span.End()

	def, err := e.persistence.Definitions().GetByID(ctx, definitionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return "", fmt.Errorf("failed to fetch definition %s: %w", definitionID, err)
	}

	instance := &models.WorkflowInstance{
		ID:            uuid.New().String(),
		DefinitionID:  def.ID,
		CorrelationID: correlationID,
		CreatedBy:     createdBy,
		Status:        models.InstanceStatusCreated,
		Variables:     models.MergedVariables(def.Variables, variables),
		CreatedAt:     e.now().UTC(),
	}

	if err := e.persistence.Instances().Create(ctx, instance); err != nil {
		return "", fmt.Errorf("failed to create instance: %w", err)
	}

	span.SetAttributes(attribute.String(otelhelper.InstanceIDKey, instance.ID))

	startedAt := e.now().UTC()
	instance.StartedAt = &startedAt
	instance.Status = models.InstanceStatusRunning
	instance.CurrentStepID = def.InitialStepID

	if err := e.persistence.Instances().Update(ctx, instance); err != nil {
		return "", fmt.Errorf("failed to update instance %s: %w", instance.ID, err)
	}

	e.logger.InfoContext(ctx, "Started workflow instance",
		"instance_id", instance.ID, "definition_id", def.ID, "correlation_id", correlationID)

	started := events.InstanceStarted{
		BaseEvent:     events.NewBaseEvent(events.InstanceStartedEvent, def.ID, instance.ID),
		CorrelationID: correlationID,
		CreatedBy:     createdBy,
		Variables:     instance.Variables,
	}
	e.publish(ctx, instance.ID, started)

	if err := e.advance(ctx, def, instance, def.InitialStepID); err != nil {
		return instance.ID, err
	}

	return instance.ID, nil
}

// advance runs the step chain synchronously, starting at stepID, until the
// instance parks or finishes. An empty or unknown step id completes the
// workflow.
func (e *Engine) advance(ctx context.Context, def *models.WorkflowDefinition, instance *models.WorkflowInstance, stepID string) error {
	for stepID != "" {
		stepDef, found := def.StepByID(stepID)
		if !found {
			e.logger.WarnContext(ctx, "Route points at unknown step, completing workflow",
				"instance_id", instance.ID, "step_id", stepID)

			break
		}

		instance.CurrentStepID = stepID
		if err := e.persistence.Instances().Update(ctx, instance); err != nil {
			return fmt.Errorf("failed to update instance %s: %w", instance.ID, err)
		}

		step, err := e.createStepInstance(ctx, instance, stepDef)
		if err != nil {
			return err
		}

		next, running, err := e.executeStep(ctx, def, instance, stepDef, step)
		if err != nil || !running {
			return err
		}

		stepID = next
	}

	return e.completeInstance(ctx, instance)
}

// createStepInstance records the step as pending; executeStep marks it
// running once an executor picks it up. A step that stays pending marks an
// advance interrupted between the two writes.
func (e *Engine) createStepInstance(ctx context.Context, instance *models.WorkflowInstance, stepDef *models.StepDefinition) (*models.StepInstance, error) {
	step := &models.StepInstance{
		ID:                 uuid.New().String(),
		WorkflowInstanceID: instance.ID,
		StepID:             stepDef.ID,
		Kind:               stepDef.Kind,
		Status:             models.StepStatusPending,
		Input:              snapshot(instance.Variables),
		CreatedAt:          e.now().UTC(),
	}

	if err := e.persistence.StepInstances().Create(ctx, step); err != nil {
		return nil, fmt.Errorf("failed to create step instance: %w", err)
	}

	stepStarted := events.StepStarted{
		BaseEvent:      events.NewBaseEvent(events.StepStartedEvent, instance.DefinitionID, instance.ID),
		StepInstanceID: step.ID,
		StepID:         step.StepID,
		Kind:           step.Kind,
	}
	e.publish(ctx, instance.ID, stepStarted)

	return step, nil
}

// executeStep dispatches one step to its executor and settles the step and
// instance state from the result. It returns the next step id and whether
// the chain keeps running; a parked or failed step ends the chain.
func (e *Engine) executeStep(ctx context.Context, def *models.WorkflowDefinition, instance *models.WorkflowInstance, stepDef *models.StepDefinition, step *models.StepInstance) (string, bool, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.execute_step",
		attribute.String(otelhelper.InstanceIDKey, instance.ID),
		attribute.String(otelhelper.StepIDKey, stepDef.ID),
		attribute.String(otelhelper.StepKindKey, string(stepDef.Kind)),
		attribute.String(otelhelper.StepInstanceIDKey, step.ID),
	)
	defer span.End()

	executor, found := e.registry.ForKind(stepDef.Kind)
	if !found {
		err := fmt.Errorf("no executor registered for step kind %q", stepDef.Kind)
		otelhelper.SetError(span, err)

		return "", false, e.failStep(ctx, instance, step, err.Error())
	}

	startedAt := e.now().UTC()
	step.Status = models.StepStatusRunning
	step.StartedAt = &startedAt

	if err := e.persistence.StepInstances().Update(ctx, step); err != nil {
		return "", false, fmt.Errorf("failed to update step instance %s: %w", step.ID, err)
	}

	result, err := executor.Execute(ctx, step, stepDef, instance)
	if err != nil {
		otelhelper.SetError(span, err)

		return "", false, e.failStep(ctx, instance, step, err.Error())
	}

	step.MergeOutput(result.Output)
	step.Status = result.Status
	step.Error = result.Error

	if result.Success {
		completedAt := e.now().UTC()
		step.CompletedAt = &completedAt

		if err := e.persistence.StepInstances().Update(ctx, step); err != nil {
			return "", false, fmt.Errorf("failed to update step instance %s: %w", step.ID, err)
		}

		e.publishStepCompleted(ctx, instance, step)

		instance.MergeVariables(step.Output)
		if err := e.persistence.Instances().Update(ctx, instance); err != nil {
			return "", false, fmt.Errorf("failed to update instance %s: %w", instance.ID, err)
		}

		return e.resolveNext(stepDef, result, instance.Variables), true, nil
	}

	switch result.Status {
	case models.StepStatusWaitingForInput, models.StepStatusScheduled:
		return "", false, e.parkInstance(ctx, instance, step)
	default:
		otelhelper.SetError(span, errors.New(result.Error))

		return "", false, e.failStep(ctx, instance, step, result.Error)
	}
}

// resolveNext picks the next step id: an explicit executor override wins,
// otherwise the first route whose condition holds. An empty return
// completes the workflow.
func (e *Engine) resolveNext(stepDef *models.StepDefinition, result *models.StepExecutionResult, variables map[string]any) string {
	if result.NextStepID != nil && *result.NextStepID != "" {
		return *result.NextStepID
	}

	for _, route := range stepDef.EffectiveRoutes() {
		if route.Condition == "" || e.evaluator.EvaluateCondition(route.Condition, variables) {
			return route.NextStepID
		}
	}

	return ""
}

// parkInstance settles a step that suspended itself, leaving the instance
// waiting for an external actor or the sweeper.
func (e *Engine) parkInstance(ctx context.Context, instance *models.WorkflowInstance, step *models.StepInstance) error {
	if err := e.persistence.StepInstances().Update(ctx, step); err != nil {
		return fmt.Errorf("failed to update step instance %s: %w", step.ID, err)
	}

	instance.Status = models.InstanceStatusWaiting
	instance.StatusReason = fmt.Sprintf("parked on step %s (%s)", step.StepID, step.Status)

	if err := e.persistence.Instances().Update(ctx, instance); err != nil {
		return fmt.Errorf("failed to update instance %s: %w", instance.ID, err)
	}

	e.logger.InfoContext(ctx, "Workflow instance parked",
		"instance_id", instance.ID, "step_id", step.StepID, "step_status", step.Status, "due_at", step.DueAt)

	waiting := events.InstanceWaiting{
		BaseEvent:  events.NewBaseEvent(events.InstanceWaitingEvent, instance.DefinitionID, instance.ID),
		StepID:     step.StepID,
		StepStatus: string(step.Status),
		AssignedTo: step.AssignedTo,
		DueAt:      step.DueAt,
	}
	e.publish(ctx, instance.ID, waiting)

	return nil
}

// failStep fails the step and the instance with it. A step that timed out
// keeps its timeout status.
func (e *Engine) failStep(ctx context.Context, instance *models.WorkflowInstance, step *models.StepInstance, message string) error {
	completedAt := e.now().UTC()
	if step.Status != models.StepStatusTimeout {
		step.Status = models.StepStatusFailed
	}

	step.Error = message
	step.CompletedAt = &completedAt

	if err := e.persistence.StepInstances().Update(ctx, step); err != nil {
		return fmt.Errorf("failed to update step instance %s: %w", step.ID, err)
	}

	stepFailed := events.StepFailed{
		BaseEvent:      events.NewBaseEvent(events.StepFailedEvent, instance.DefinitionID, instance.ID),
		StepInstanceID: step.ID,
		StepID:         step.StepID,
		Error:          message,
		RetryCount:     step.RetryCount,
	}
	e.publish(ctx, instance.ID, stepFailed)

	instance.Status = models.InstanceStatusFailed
	instance.StatusReason = message
	instance.CompletedAt = &completedAt

	if err := e.persistence.Instances().Update(ctx, instance); err != nil {
		return fmt.Errorf("failed to update instance %s: %w", instance.ID, err)
	}

	e.logger.ErrorContext(ctx, "Workflow instance failed",
		"instance_id", instance.ID, "step_id", step.StepID, "error", message)

	failed := events.InstanceFailed{
		BaseEvent:  events.NewBaseEvent(events.InstanceFailedEvent, instance.DefinitionID, instance.ID),
		StepID:     step.StepID,
		Error:      message,
		DurationMs: e.durationMs(instance),
	}
	e.publish(ctx, instance.ID, failed)

	e.notifyWatchers(instance)

	return nil
}

func (e *Engine) completeInstance(ctx context.Context, instance *models.WorkflowInstance) error {
	completedAt := e.now().UTC()
	instance.Status = models.InstanceStatusCompleted
	instance.StatusReason = ""
	instance.CurrentStepID = ""
	instance.CompletedAt = &completedAt

	if err := e.persistence.Instances().Update(ctx, instance); err != nil {
		return fmt.Errorf("failed to update instance %s: %w", instance.ID, err)
	}

	e.logger.InfoContext(ctx, "Workflow instance completed", "instance_id", instance.ID)

	completed := events.InstanceCompleted{
		BaseEvent:  events.NewBaseEvent(events.InstanceCompletedEvent, instance.DefinitionID, instance.ID),
		Variables:  instance.Variables,
		DurationMs: e.durationMs(instance),
	}
	e.publish(ctx, instance.ID, completed)

	e.notifyWatchers(instance)

	return nil
}

func (e *Engine) publishStepCompleted(ctx context.Context, instance *models.WorkflowInstance, step *models.StepInstance) {
	var durationMs int64
	if step.StartedAt != nil && step.CompletedAt != nil {
		durationMs = step.CompletedAt.Sub(*step.StartedAt).Milliseconds()
	}

	completed := events.StepCompleted{
		BaseEvent:      events.NewBaseEvent(events.StepCompletedEvent, instance.DefinitionID, instance.ID),
		StepInstanceID: step.ID,
		StepID:         step.StepID,
		Status:         step.Status,
		Output:         step.Output,
		DurationMs:     durationMs,
	}
	e.publish(ctx, instance.ID, completed)
}

// publish sends a lifecycle event when a bus is configured. Publish
// failures are logged, never propagated: event delivery is observational.
func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.eventBus == nil {
		return
	}

	if err := e.eventBus.Publish(ctx, key, event); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "key", key, "error", err)
	}
}

func (e *Engine) durationMs(instance *models.WorkflowInstance) int64 {
	if instance.StartedAt == nil || instance.CompletedAt == nil {
		return 0
	}

	return instance.CompletedAt.Sub(*instance.StartedAt).Milliseconds()
}

func snapshot(variables map[string]any) map[string]any {
	if variables == nil {
		return nil
	}

	copied := make(map[string]any, len(variables))
	for k, v := range variables {
		copied[k] = v
	}

	return copied
}
