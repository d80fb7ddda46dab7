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
	"time"

	"github.com/stepflow-io/stepflow/pkg/models"
	"github.com/stepflow-io/stepflow/pkg/persistence"
)

// StepInstanceRepository handles step instance file operations.
type StepInstanceRepository struct {
	root string
}

// NewStepInstanceRepository creates a new step instance repository.
func NewStepInstanceRepository(root string) *StepInstanceRepository {
	return &StepInstanceRepository{root: root}
}

func (sr *StepInstanceRepository) dir() string {
	return path.Join(sr.root, "steps")
}

// GetByID retrieves a step instance by id.
func (sr *StepInstanceRepository) GetByID(_ context.Context, id string) (*models.StepInstance, error) {
	filePath := filepath.Clean(path.Join(sr.dir(), id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("step instance %s: %w", id, persistence.ErrStepInstanceNotFound)
		}

		return nil, fmt.Errorf("failed to read step instance %s: %w", id, err)
	}

	var step models.StepInstance

	err = json.Unmarshal(body, &step)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal step instance %s: %w", id, err)
	}

	return &step, nil
}

// Create writes a new step instance.
func (sr *StepInstanceRepository) Create(_ context.Context, step *models.StepInstance) error {
	return sr.write(step)
}

// Update overwrites an existing step instance.
func (sr *StepInstanceRepository) Update(_ context.Context, step *models.StepInstance) error {
	return sr.write(step)
}

func (sr *StepInstanceRepository) write(step *models.StepInstance) error {
	err := os.MkdirAll(sr.dir(), 0750)
	if err != nil {
		return fmt.Errorf("failed to create steps directory: %w", err)
	}

	body, err := json.MarshalIndent(step, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal step instance %s: %w", step.ID, err)
	}

	filePath := filepath.Clean(path.Join(sr.dir(), step.ID+".json"))

	err = os.WriteFile(filePath, body, 0600)
	if err != nil {
		return fmt.Errorf("failed to write step instance %s: %w", step.ID, err)
	}

	return nil
}

// ListByInstance returns the step history of a workflow instance in visit order.
func (sr *StepInstanceRepository) ListByInstance(ctx context.Context, instanceID string) ([]*models.StepInstance, error) {
	return sr.list(ctx, func(step *models.StepInstance) bool {
		return step.WorkflowInstanceID == instanceID
	})
}

// ListPending returns all step instances still in pending status.
func (sr *StepInstanceRepository) ListPending(ctx context.Context) ([]*models.StepInstance, error) {
	return sr.list(ctx, func(step *models.StepInstance) bool {
		return step.Status == models.StepStatusPending
	})
}

// ListScheduledDueBefore returns scheduled step instances whose due time has
// passed. Steps completed by an earlier sweep no longer match.
func (sr *StepInstanceRepository) ListScheduledDueBefore(ctx context.Context, due time.Time) ([]*models.StepInstance, error) {
	return sr.list(ctx, func(step *models.StepInstance) bool {
		return step.Status == models.StepStatusScheduled && step.DueAt != nil && !step.DueAt.After(due)
	})
}

// ListWaitingForActor returns waiting interaction steps assigned to an actor.
func (sr *StepInstanceRepository) ListWaitingForActor(ctx context.Context, actor string) ([]*models.StepInstance, error) {
	return sr.list(ctx, func(step *models.StepInstance) bool {
		return step.Status == models.StepStatusWaitingForInput && step.AssignedTo == actor
	})
}

func (sr *StepInstanceRepository) list(ctx context.Context, match func(*models.StepInstance) bool) ([]*models.StepInstance, error) {
	if _, err := os.Stat(sr.dir()); os.IsNotExist(err) {
		return make([]*models.StepInstance, 0), nil
	}

	root := os.DirFS(sr.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list step instance files: %w", err)
	}

	steps := make([]*models.StepInstance, 0)

	for _, file := range jsonFiles {
		id := file[:len(file)-len(".json")]

		step, err := sr.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if match(step) {
			steps = append(steps, step)
		}
	}

	sort.Slice(steps, func(i, j int) bool {
		return steps[i].CreatedAt.Before(steps[j].CreatedAt)
	})

	return steps, nil
}
