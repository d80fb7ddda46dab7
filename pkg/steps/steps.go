// Package steps defines the execution contract shared by all step kinds
// and the registry the engine dispatches through.
package steps

import (
	"context"

	"github.com/stepflow-io/stepflow/pkg/models"
)

// Executor runs one kind of workflow step.
type Executor interface {
	CanExecute(kind models.StepKind) bool
	Execute(ctx context.Context, step *models.StepInstance, def *models.StepDefinition, instance *models.WorkflowInstance) (*models.StepExecutionResult, error)
}

// Registry holds the configured executors in registration order.
type Registry struct {
	executors []Executor
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an executor.
func (r *Registry) Register(executor Executor) {
	r.executors = append(r.executors, executor)
}

// ForKind returns the first executor claiming the given step kind.
func (r *Registry) ForKind(kind models.StepKind) (Executor, bool) {
	for _, executor := range r.executors {
		if executor.CanExecute(kind) {
			return executor, true
		}
	}

	return nil, false
}
