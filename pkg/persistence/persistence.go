// Package persistence provides the data storage abstraction for workflow
// definitions, instances and step instances.
package persistence

import (
	"context"
	"time"

	"github.com/stepflow-io/stepflow/pkg/models"
)

// Persistence bundles the three repositories behind one storage backend.
type Persistence interface {
	Definitions() DefinitionRepository
	Instances() InstanceRepository
	StepInstances() StepInstanceRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// DefinitionRepository stores immutable workflow definitions.
type DefinitionRepository interface {
	GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	Save(ctx context.Context, def *models.WorkflowDefinition) error
	List(ctx context.Context) ([]*models.WorkflowDefinition, error)
}

// InstanceRepository stores workflow instances.
type InstanceRepository interface {
	GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error)
	Create(ctx context.Context, instance *models.WorkflowInstance) error
	Update(ctx context.Context, instance *models.WorkflowInstance) error
	ListByStatus(ctx context.Context, status models.InstanceStatus) ([]*models.WorkflowInstance, error)
	ListByCorrelationID(ctx context.Context, correlationID string) ([]*models.WorkflowInstance, error)
}

// StepInstanceRepository stores step instances.
type StepInstanceRepository interface {
	GetByID(ctx context.Context, id string) (*models.StepInstance, error)
	Create(ctx context.Context, step *models.StepInstance) error
	Update(ctx context.Context, step *models.StepInstance) error
	ListByInstance(ctx context.Context, instanceID string) ([]*models.StepInstance, error)
	ListPending(ctx context.Context) ([]*models.StepInstance, error)
	ListScheduledDueBefore(ctx context.Context, due time.Time) ([]*models.StepInstance, error)
	ListWaitingForActor(ctx context.Context, actor string) ([]*models.StepInstance, error)
}
