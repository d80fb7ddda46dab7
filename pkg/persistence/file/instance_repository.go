package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/stepflow-io/stepflow/pkg/models"
	"github.com/stepflow-io/stepflow/pkg/persistence"
)

// InstanceRepository handles workflow instance file operations.
type InstanceRepository struct {
	root string
}

// NewInstanceRepository creates a new instance repository.
func NewInstanceRepository(root string) *InstanceRepository {
	return &InstanceRepository{root: root}
}

func (ir *InstanceRepository) dir() string {
	return path.Join(ir.root, "instances")
}

// GetByID retrieves a workflow instance by id.
func (ir *InstanceRepository) GetByID(_ context.Context, id string) (*models.WorkflowInstance, error) {
	filePath := filepath.Clean(path.Join(ir.dir(), id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewInstanceError("GetByID", id, persistence.ErrInstanceNotFound)
		}

		return nil, persistence.NewInstanceError("GetByID", id, err)
	}

	var instance models.WorkflowInstance

	err = json.Unmarshal(body, &instance)
	if err != nil {
		return nil, persistence.NewInstanceError("GetByID", id, err)
	}

	return &instance, nil
}

// Create writes a new workflow instance.
func (ir *InstanceRepository) Create(ctx context.Context, instance *models.WorkflowInstance) error {
	filePath := filepath.Clean(path.Join(ir.dir(), instance.ID+".json"))
	if _, err := os.Stat(filePath); err == nil {
		return persistence.NewInstanceError("Create", instance.ID, persistence.ErrInstanceAlreadyExists)
	}

	return ir.write(instance, "Create")
}

// Update overwrites an existing workflow instance.
func (ir *InstanceRepository) Update(_ context.Context, instance *models.WorkflowInstance) error {
	return ir.write(instance, "Update")
}

func (ir *InstanceRepository) write(instance *models.WorkflowInstance, op string) error {
	err := os.MkdirAll(ir.dir(), 0750)
	if err != nil {
		return persistence.NewInstanceError(op, instance.ID, err)
	}

	body, err := json.MarshalIndent(instance, "", "  ")
	if err != nil {
		return persistence.NewInstanceError(op, instance.ID, err)
	}

	filePath := filepath.Clean(path.Join(ir.dir(), instance.ID+".json"))

	err = os.WriteFile(filePath, body, 0600)
	if err != nil {
		return persistence.NewInstanceError(op, instance.ID, err)
	}

	return nil
}

// ListByStatus returns all instances with the given status.
func (ir *InstanceRepository) ListByStatus(ctx context.Context, status models.InstanceStatus) ([]*models.WorkflowInstance, error) {
	return ir.list(ctx, func(instance *models.WorkflowInstance) bool {
		return instance.Status == status
	})
}

// ListByCorrelationID returns all instances carrying the given correlation id.
func (ir *InstanceRepository) ListByCorrelationID(ctx context.Context, correlationID string) ([]*models.WorkflowInstance, error) {
	return ir.list(ctx, func(instance *models.WorkflowInstance) bool {
		return instance.CorrelationID == correlationID
	})
}

func (ir *InstanceRepository) list(ctx context.Context, match func(*models.WorkflowInstance) bool) ([]*models.WorkflowInstance, error) {
	if _, err := os.Stat(ir.dir()); os.IsNotExist(err) {
		return make([]*models.WorkflowInstance, 0), nil
	}

	root := os.DirFS(ir.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list instance files: %w", err)
	}

	instances := make([]*models.WorkflowInstance, 0)

	for _, file := range jsonFiles {
		id := file[:len(file)-len(".json")]

		instance, err := ir.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if match(instance) {
			instances = append(instances, instance)
		}
	}

	sort.Slice(instances, func(i, j int) bool {
		return instances[i].CreatedAt.Before(instances[j].CreatedAt)
	})

	return instances, nil
}
