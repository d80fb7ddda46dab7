// Package events defines the lifecycle notifications emitted by the
// workflow engine. Events are observational: no engine behavior depends
// on a subscriber seeing them.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/stepflow-io/stepflow/pkg/models"
)

type EventType string

// Topic is the single stream carrying all lifecycle events.
const Topic = "stepflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Workflow instance lifecycle.
	InstanceStartedEvent   EventType = "instance.started"
	InstanceWaitingEvent   EventType = "instance.waiting"
	InstanceCompletedEvent EventType = "instance.completed"
	InstanceFailedEvent    EventType = "instance.failed"
	InstanceCancelledEvent EventType = "instance.cancelled"
	InstanceSuspendedEvent EventType = "instance.suspended"
	InstanceResumedEvent   EventType = "instance.resumed"

	// Step lifecycle.
	StepStartedEvent   EventType = "step.started"
	StepCompletedEvent EventType = "step.completed"
	StepFailedEvent    EventType = "step.failed"
)

type BaseEvent struct {
	ID           string         `json:"id"`
	Type         EventType      `json:"type"`
	Timestamp    time.Time      `json:"timestamp"`
	DefinitionID string         `json:"definition_id"`
	InstanceID   string         `json:"instance_id"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, definitionID, instanceID string) BaseEvent {
	return BaseEvent{
		ID:           uuid.New().String(),
		Type:         eventType,
		Timestamp:    time.Now().UTC(),
		DefinitionID: definitionID,
		InstanceID:   instanceID,
		Metadata:     make(map[string]any),
	}
}

type InstanceStarted struct {
	BaseEvent

	CorrelationID string         `json:"correlation_id,omitempty"`
	CreatedBy     string         `json:"created_by,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

func (e InstanceStarted) GetType() EventType { return InstanceStartedEvent }

// InstanceWaiting is emitted when an instance parks on an interaction or
// scheduled step.
type InstanceWaiting struct {
	BaseEvent

	StepID     string     `json:"step_id"`
	StepStatus string     `json:"step_status"`
	AssignedTo string     `json:"assigned_to,omitempty"`
	DueAt      *time.Time `json:"due_at,omitempty"`
}

func (e InstanceWaiting) GetType() EventType { return InstanceWaitingEvent }

type InstanceCompleted struct {
	BaseEvent

	Variables  map[string]any `json:"variables,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

func (e InstanceCompleted) GetType() EventType { return InstanceCompletedEvent }

type InstanceFailed struct {
	BaseEvent

	StepID     string `json:"step_id,omitempty"`
	Error      string `json:"error"`
	DurationMs int64  `json:"duration_ms"`
}

func (e InstanceFailed) GetType() EventType { return InstanceFailedEvent }

type InstanceCancelled struct {
	BaseEvent

	Reason      string `json:"reason,omitempty"`
	CancelledBy string `json:"cancelled_by,omitempty"`
}

func (e InstanceCancelled) GetType() EventType { return InstanceCancelledEvent }

type InstanceSuspended struct {
	BaseEvent

	Reason string `json:"reason,omitempty"`
}

func (e InstanceSuspended) GetType() EventType { return InstanceSuspendedEvent }

type InstanceResumed struct {
	BaseEvent

	ResumedBy string `json:"resumed_by,omitempty"`
}

func (e InstanceResumed) GetType() EventType { return InstanceResumedEvent }

type StepStarted struct {
	BaseEvent

	StepInstanceID string          `json:"step_instance_id"`
	StepID         string          `json:"step_id"`
	Kind           models.StepKind `json:"kind"`
}

func (e StepStarted) GetType() EventType { return StepStartedEvent }

type StepCompleted struct {
	BaseEvent

	StepInstanceID string            `json:"step_instance_id"`
	StepID         string            `json:"step_id"`
	Status         models.StepStatus `json:"status"`
	Output         map[string]any    `json:"output,omitempty"`
	DurationMs     int64             `json:"duration_ms"`
}

func (e StepCompleted) GetType() EventType { return StepCompletedEvent }

type StepFailed struct {
	BaseEvent

	StepInstanceID string `json:"step_instance_id"`
	StepID         string `json:"step_id"`
	Error          string `json:"error"`
	RetryCount     int    `json:"retry_count"`
}

func (e StepFailed) GetType() EventType { return StepFailedEvent }
