package models

import "time"

// StepStatus represents the lifecycle state of a step instance.
type StepStatus string

const (
	StepStatusPending         StepStatus = "pending"
	StepStatusRunning         StepStatus = "running"
	StepStatusCompleted       StepStatus = "completed"
	StepStatusSkipped         StepStatus = "skipped"
	StepStatusWaitingForInput StepStatus = "waiting_for_input"
	StepStatusScheduled       StepStatus = "scheduled"
	StepStatusFailed          StepStatus = "failed"
	StepStatusTimeout         StepStatus = "timeout"
)

// IsTerminal reports whether the status ends the step instance's life.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusCompleted, StepStatusSkipped, StepStatusFailed, StepStatusTimeout:
		return true
	default:
		return false
	}
}

// StepInstance records one visit to one step within one workflow instance.
// Re-entry (a business retry, for example) mutates the same instance rather
// than creating a new one.
type StepInstance struct {
	ID                 string         `json:"id"`
	WorkflowInstanceID string         `json:"workflow_instance_id"`
	StepID             string         `json:"step_id"`
	Kind               StepKind       `json:"kind"`
	Status             StepStatus     `json:"status"`
	Input              map[string]any `json:"input,omitempty"`  // Snapshot of variables at entry
	Output             map[string]any `json:"output,omitempty"` // Merged back into instance variables
	Error              string         `json:"error,omitempty"`
	RetryCount         int            `json:"retry_count"`
	AssignedTo         string         `json:"assigned_to,omitempty"`
	CompletedBy        string         `json:"completed_by,omitempty"`
	ExternalTaskID     string         `json:"external_task_id,omitempty"`
	DueAt              *time.Time     `json:"due_at,omitempty"` // Set while the step is parked as scheduled
	CreatedAt          time.Time      `json:"created_at"`
	StartedAt          *time.Time     `json:"started_at,omitempty"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
}

// MergeOutput merges the given map into the step output, later values
// overwriting existing keys.
func (si *StepInstance) MergeOutput(values map[string]any) {
	if len(values) == 0 {
		return
	}

	if si.Output == nil {
		si.Output = make(map[string]any, len(values))
	}

	for k, v := range values {
		si.Output[k] = v
	}
}
