// Package web provides the HTTP API for workflow definitions and
// instances.
package web

import (
	"github.com/stepflow-io/stepflow/pkg/models"
)

// StartInstanceRequest starts a new workflow instance.
type StartInstanceRequest struct {
	DefinitionID  string         `json:"definition_id"            validate:"required"`
	Variables     map[string]any `json:"variables,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	CreatedBy     string         `json:"created_by,omitempty"`
}

// CompleteStepRequest records an actor's input on a waiting step.
type CompleteStepRequest struct {
	CompletedBy string         `json:"completed_by"       validate:"required"`
	Outputs     map[string]any `json:"outputs,omitempty"`
}

// CancelInstanceRequest cancels an instance.
type CancelInstanceRequest struct {
	Reason      string `json:"reason,omitempty"`
	CancelledBy string `json:"cancelled_by,omitempty"`
}

// SuspendInstanceRequest pauses an instance.
type SuspendInstanceRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ResumeInstanceRequest lifts a suspension.
type ResumeInstanceRequest struct {
	ResumedBy string `json:"resumed_by,omitempty"`
}

// InstanceResponse is an instance with its step history.
type InstanceResponse struct {
	*models.WorkflowInstance

	Steps []*models.StepInstance `json:"steps,omitempty"`
}
