// Package tasks integrates workflow interaction steps with an external
// ticket/task system. The collaborator is optional: the engine runs
// correctly with none configured, and every failure here is absorbed so
// the workflow keeps making progress.
package tasks

import "context"

// TaskInfo describes the task to open in the external system.
type TaskInfo struct {
	WorkflowInstanceID string         `json:"workflow_instance_id"`
	StepInstanceID     string         `json:"step_instance_id"`
	Title              string         `json:"title"`
	Description        string         `json:"description,omitempty"`
	AssignedTo         string         `json:"assigned_to,omitempty"`
	Variables          map[string]any `json:"variables,omitempty"`
}

// Manager creates and closes tasks in an external task system.
type Manager interface {
	CreateTask(ctx context.Context, info TaskInfo) (string, error)
	CloseTask(ctx context.Context, externalTaskID string, data map[string]any) error
	UpdateTask(ctx context.Context, externalTaskID string, data map[string]any) error
	CancelTask(ctx context.Context, externalTaskID string) error
}
