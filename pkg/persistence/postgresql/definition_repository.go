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

// DefinitionRepository handles workflow definition database operations.
// Definitions are stored as a JSONB document keyed by id, the way they
// arrive from the loader.
type DefinitionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDefinitionRepository creates a new definition repository.
func NewDefinitionRepository(db *sql.DB, logger *slog.Logger) *DefinitionRepository {
	return &DefinitionRepository{db: db, logger: logger}
}

// GetByID returns a workflow definition by its id.
func (r *DefinitionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	query := `SELECT body FROM workflow_definitions WHERE id = $1`

	var body []byte

	err := r.db.QueryRowContext(ctx, query, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("definition %s: %w", id, persistence.ErrDefinitionNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query definition %s: %w", id, err)
	}

	var def models.WorkflowDefinition

	err = json.Unmarshal(body, &def)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal definition %s: %w", id, err)
	}

	return &def, nil
}

// Save upserts a workflow definition.
func (r *DefinitionRepository) Save(ctx context.Context, def *models.WorkflowDefinition) error {
	body, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to marshal definition %s: %w", def.ID, err)
	}

	query := `
		INSERT INTO workflow_definitions (id, version, body)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			version = EXCLUDED.version,
			body = EXCLUDED.body,
			updated_at = NOW()
	`

	_, err = r.db.ExecContext(ctx, query, def.ID, def.Version, body)
	if err != nil {
		return fmt.Errorf("failed to save definition %s: %w", def.ID, err)
	}

	return nil
}

// List returns all stored workflow definitions.
func (r *DefinitionRepository) List(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	query := `SELECT body FROM workflow_definitions ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query definitions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	defs := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		var body []byte

		err := rows.Scan(&body)
		if err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}

		var def models.WorkflowDefinition

		err = json.Unmarshal(body, &def)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal definition: %w", err)
		}

		defs = append(defs, &def)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating definitions: %w", err)
	}

	return defs, nil
}
