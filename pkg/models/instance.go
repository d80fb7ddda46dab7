package models

import "time"

// InstanceStatus represents the lifecycle state of a workflow instance.
type InstanceStatus string

const (
	InstanceStatusCreated   InstanceStatus = "created"
	InstanceStatusRunning   InstanceStatus = "running"
	InstanceStatusWaiting   InstanceStatus = "waiting"   // Parked on an interaction or scheduled step
	InstanceStatusSuspended InstanceStatus = "suspended" // Administratively paused
	InstanceStatusCompleted InstanceStatus = "completed"
	InstanceStatusFailed    InstanceStatus = "failed"
	InstanceStatusCancelled InstanceStatus = "cancelled"
)

// IsTerminal reports whether the status ends the instance's life.
func (s InstanceStatus) IsTerminal() bool {
	return s == InstanceStatusCompleted || s == InstanceStatusFailed || s == InstanceStatusCancelled
}

// WorkflowInstance is one running (or finished) execution of a definition.
// The engine owns it exclusively while advancing; it is persisted after
// every status-affecting mutation.
type WorkflowInstance struct {
	ID            string         `json:"id"`
	DefinitionID  string         `json:"definition_id" validate:"required"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	CreatedBy     string         `json:"created_by,omitempty"`
	CurrentStepID string         `json:"current_step_id,omitempty"`
	Status        InstanceStatus `json:"status"`
	StatusReason  string         `json:"status_reason,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

// MergeVariables merges the given map into the instance variables, later
// values overwriting existing keys of the same name.
func (i *WorkflowInstance) MergeVariables(values map[string]any) {
	if len(values) == 0 {
		return
	}

	if i.Variables == nil {
		i.Variables = make(map[string]any, len(values))
	}

	for k, v := range values {
		i.Variables[k] = v
	}
}

// MergedVariables returns the definition defaults overlaid with the caller
// supplied overrides, caller values winning on key collision.
func MergedVariables(defaults, overrides map[string]any) map[string]any {
	merged := make(map[string]any, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}

	for k, v := range overrides {
		merged[k] = v
	}

	return merged
}
