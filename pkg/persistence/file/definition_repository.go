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

// DefinitionRepository handles workflow definition file operations.
type DefinitionRepository struct {
	root string
}

// NewDefinitionRepository creates a new definition repository.
func NewDefinitionRepository(root string) *DefinitionRepository {
	return &DefinitionRepository{root: root}
}

func (dr *DefinitionRepository) dir() string {
	return path.Join(dr.root, "definitions")
}

// GetByID retrieves a workflow definition by id.
func (dr *DefinitionRepository) GetByID(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	filePath := filepath.Clean(path.Join(dr.dir(), id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("definition %s: %w", id, persistence.ErrDefinitionNotFound)
		}

		return nil, fmt.Errorf("failed to read definition %s: %w", id, err)
	}

	var def models.WorkflowDefinition

	err = json.Unmarshal(body, &def)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal definition %s: %w", id, err)
	}

	return &def, nil
}

// Save writes a workflow definition to disk.
func (dr *DefinitionRepository) Save(_ context.Context, def *models.WorkflowDefinition) error {
	err := os.MkdirAll(dr.dir(), 0750)
	if err != nil {
		return fmt.Errorf("failed to create definitions directory: %w", err)
	}

	body, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal definition %s: %w", def.ID, err)
	}

	filePath := filepath.Clean(path.Join(dr.dir(), def.ID+".json"))

	err = os.WriteFile(filePath, body, 0600)
	if err != nil {
		return fmt.Errorf("failed to write definition %s: %w", def.ID, err)
	}

	return nil
}

// List returns all stored workflow definitions sorted by id.
func (dr *DefinitionRepository) List(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	if _, err := os.Stat(dr.dir()); os.IsNotExist(err) {
		return make([]*models.WorkflowDefinition, 0), nil
	}

	root := os.DirFS(dr.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list definition files: %w", err)
	}

	defs := make([]*models.WorkflowDefinition, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		id := file[:len(file)-len(".json")]

		def, err := dr.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		defs = append(defs, def)
	}

	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })

	return defs, nil
}
