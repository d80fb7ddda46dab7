package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stepflow-io/stepflow/pkg/models"
	"github.com/stepflow-io/stepflow/pkg/persistence"
)

// StepInstanceRepository handles step instance database operations.
type StepInstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStepInstanceRepository creates a new step instance repository.
func NewStepInstanceRepository(db *sql.DB, logger *slog.Logger) *StepInstanceRepository {
	return &StepInstanceRepository{db: db, logger: logger}
}

const stepColumns = `
	id
  , workflow_instance_id
  , step_id
  , kind
  , status
  , input
  , output
  , error
  , retry_count
  , assigned_to
  , completed_by
  , external_task_id
  , due_at
  , created_at
  , started_at
  , completed_at
`

// GetByID returns a step instance by its id.
func (r *StepInstanceRepository) GetByID(ctx context.Context, id string) (*models.StepInstance, error) {
	query := `SELECT ` + stepColumns + ` FROM step_instances WHERE id = $1`

	step, err := scanStep(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("step instance %s: %w", id, persistence.ErrStepInstanceNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query step instance %s: %w", id, err)
	}

	return step, nil
}

// Create inserts a new step instance.
func (r *StepInstanceRepository) Create(ctx context.Context, step *models.StepInstance) error {
	input, output, err := marshalStepData(step)
	if err != nil {
		return fmt.Errorf("failed to marshal step instance %s: %w", step.ID, err)
	}

	query := `
		INSERT INTO step_instances (id, workflow_instance_id, step_id, kind, status, input, output, error, retry_count, assigned_to, completed_by, external_task_id, due_at, created_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err = r.db.ExecContext(ctx, query,
		step.ID,
		step.WorkflowInstanceID,
		step.StepID,
		string(step.Kind),
		string(step.Status),
		input,
		output,
		nullString(step.Error),
		step.RetryCount,
		nullString(step.AssignedTo),
		nullString(step.CompletedBy),
		nullString(step.ExternalTaskID),
		step.DueAt,
		step.CreatedAt,
		step.StartedAt,
		step.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert step instance %s: %w", step.ID, err)
	}

	return nil
}

// Update overwrites an existing step instance.
func (r *StepInstanceRepository) Update(ctx context.Context, step *models.StepInstance) error {
	input, output, err := marshalStepData(step)
	if err != nil {
		return fmt.Errorf("failed to marshal step instance %s: %w", step.ID, err)
	}

	query := `
		UPDATE step_instances SET
			status = $2,
			input = $3,
			output = $4,
			error = $5,
			retry_count = $6,
			assigned_to = $7,
			completed_by = $8,
			external_task_id = $9,
			due_at = $10,
			started_at = $11,
			completed_at = $12
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		step.ID,
		string(step.Status),
		input,
		output,
		nullString(step.Error),
		step.RetryCount,
		nullString(step.AssignedTo),
		nullString(step.CompletedBy),
		nullString(step.ExternalTaskID),
		step.DueAt,
		step.StartedAt,
		step.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update step instance %s: %w", step.ID, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("step instance %s: %w", step.ID, persistence.ErrStepInstanceNotFound)
	}

	return nil
}

// ListByInstance returns the step history of one instance in visit order.
func (r *StepInstanceRepository) ListByInstance(ctx context.Context, instanceID string) ([]*models.StepInstance, error) {
	query := `SELECT ` + stepColumns + ` FROM step_instances WHERE workflow_instance_id = $1 ORDER BY created_at`

	return r.list(ctx, query, instanceID)
}

// ListPending returns all step instances still in pending status.
func (r *StepInstanceRepository) ListPending(ctx context.Context) ([]*models.StepInstance, error) {
	query := `SELECT ` + stepColumns + ` FROM step_instances WHERE status = $1 ORDER BY created_at`

	return r.list(ctx, query, string(models.StepStatusPending))
}

// ListScheduledDueBefore returns scheduled step instances whose due time has
// passed. Steps completed by an earlier sweep no longer match.
func (r *StepInstanceRepository) ListScheduledDueBefore(ctx context.Context, due time.Time) ([]*models.StepInstance, error) {
	query := `SELECT ` + stepColumns + ` FROM step_instances WHERE status = $1 AND due_at <= $2 ORDER BY due_at`

	return r.list(ctx, query, string(models.StepStatusScheduled), due)
}

// ListWaitingForActor returns waiting interaction steps assigned to an actor.
func (r *StepInstanceRepository) ListWaitingForActor(ctx context.Context, actor string) ([]*models.StepInstance, error) {
	query := `SELECT ` + stepColumns + ` FROM step_instances WHERE status = $1 AND assigned_to = $2 ORDER BY created_at`

	return r.list(ctx, query, string(models.StepStatusWaitingForInput), actor)
}

func (r *StepInstanceRepository) list(ctx context.Context, query string, args ...any) ([]*models.StepInstance, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query step instances: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	steps := make([]*models.StepInstance, 0)

	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step instance: %w", err)
		}

		steps = append(steps, step)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating step instances: %w", err)
	}

	return steps, nil
}

func scanStep(row rowScanner) (*models.StepInstance, error) {
	var (
		step           models.StepInstance
		input          []byte
		output         []byte
		errorText      sql.NullString
		assignedTo     sql.NullString
		completedBy    sql.NullString
		externalTaskID sql.NullString
	)

	err := row.Scan(
		&step.ID,
		&step.WorkflowInstanceID,
		&step.StepID,
		&step.Kind,
		&step.Status,
		&input,
		&output,
		&errorText,
		&step.RetryCount,
		&assignedTo,
		&completedBy,
		&externalTaskID,
		&step.DueAt,
		&step.CreatedAt,
		&step.StartedAt,
		&step.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	step.Error = errorText.String
	step.AssignedTo = assignedTo.String
	step.CompletedBy = completedBy.String
	step.ExternalTaskID = externalTaskID.String

	if len(input) > 0 {
		err = json.Unmarshal(input, &step.Input)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal step input: %w", err)
		}
	}

	if len(output) > 0 {
		err = json.Unmarshal(output, &step.Output)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal step output: %w", err)
		}
	}

	return &step, nil
}

func marshalStepData(step *models.StepInstance) (input []byte, output []byte, err error) {
	input, err = json.Marshal(step.Input)
	if err != nil {
		return nil, nil, err
	}

	output, err = json.Marshal(step.Output)
	if err != nil {
		return nil, nil, err
	}

	return input, output, nil
}
