package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stepflow-io/stepflow/pkg/models"
	"github.com/stepflow-io/stepflow/pkg/persistence"
)

// InstanceRepository handles workflow instance database operations.
type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewInstanceRepository creates a new instance repository.
func NewInstanceRepository(db *sql.DB, logger *slog.Logger) *InstanceRepository {
	return &InstanceRepository{db: db, logger: logger}
}

const instanceColumns = `
	id
  , definition_id
  , correlation_id
  , created_by
  , current_step_id
  , status
  , status_reason
  , variables
  , created_at
  , started_at
  , completed_at
`

// GetByID returns a workflow instance by its id.
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE id = $1`

	instance, err := scanInstance(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewInstanceError("GetByID", id, persistence.ErrInstanceNotFound)
	}

	if err != nil {
		return nil, persistence.NewInstanceError("GetByID", id, err)
	}

	return instance, nil
}

// Create inserts a new workflow instance.
func (r *InstanceRepository) Create(ctx context.Context, instance *models.WorkflowInstance) error {
	variables, err := json.Marshal(instance.Variables)
	if err != nil {
		return persistence.NewInstanceError("Create", instance.ID, err)
	}

	query := `
		INSERT INTO workflow_instances (id, definition_id, correlation_id, created_by, current_step_id, status, status_reason, variables, created_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		instance.ID,
		instance.DefinitionID,
		nullString(instance.CorrelationID),
		nullString(instance.CreatedBy),
		nullString(instance.CurrentStepID),
		string(instance.Status),
		nullString(instance.StatusReason),
		variables,
		instance.CreatedAt,
		instance.StartedAt,
		instance.CompletedAt,
	)
	if err != nil {
		return persistence.NewInstanceError("Create", instance.ID, err)
	}

	return nil
}

// Update overwrites an existing workflow instance.
func (r *InstanceRepository) Update(ctx context.Context, instance *models.WorkflowInstance) error {
	variables, err := json.Marshal(instance.Variables)
	if err != nil {
		return persistence.NewInstanceError("Update", instance.ID, err)
	}

	query := `
		UPDATE workflow_instances SET
			current_step_id = $2,
			status = $3,
			status_reason = $4,
			variables = $5,
			started_at = $6,
			completed_at = $7
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		instance.ID,
		nullString(instance.CurrentStepID),
		string(instance.Status),
		nullString(instance.StatusReason),
		variables,
		instance.StartedAt,
		instance.CompletedAt,
	)
	if err != nil {
		return persistence.NewInstanceError("Update", instance.ID, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return persistence.NewInstanceError("Update", instance.ID, persistence.ErrInstanceNotFound)
	}

	return nil
}

// ListByStatus returns all instances with the given status, oldest first.
func (r *InstanceRepository) ListByStatus(ctx context.Context, status models.InstanceStatus) ([]*models.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE status = $1 ORDER BY created_at`

	return r.list(ctx, query, string(status))
}

// ListByCorrelationID returns all instances carrying the given correlation id.
func (r *InstanceRepository) ListByCorrelationID(ctx context.Context, correlationID string) ([]*models.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE correlation_id = $1 ORDER BY created_at`

	return r.list(ctx, query, correlationID)
}

func (r *InstanceRepository) list(ctx context.Context, query string, args ...any) ([]*models.WorkflowInstance, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	instances := make([]*models.WorkflowInstance, 0)

	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}

		instances = append(instances, instance)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}

	return instances, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (*models.WorkflowInstance, error) {
	var (
		instance      models.WorkflowInstance
		correlationID sql.NullString
		createdBy     sql.NullString
		currentStepID sql.NullString
		statusReason  sql.NullString
		variables     []byte
	)

	err := row.Scan(
		&instance.ID,
		&instance.DefinitionID,
		&correlationID,
		&createdBy,
		&currentStepID,
		&instance.Status,
		&statusReason,
		&variables,
		&instance.CreatedAt,
		&instance.StartedAt,
		&instance.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	instance.CorrelationID = correlationID.String
	instance.CreatedBy = createdBy.String
	instance.CurrentStepID = currentStepID.String
	instance.StatusReason = statusReason.String

	if len(variables) > 0 {
		err = json.Unmarshal(variables, &instance.Variables)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
		}
	}

	return &instance, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
