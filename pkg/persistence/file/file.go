// Package file provides file-based persistence for workflow definitions,
// instances and step instances. It is intended for local development and
// tests; every record is one JSON document under the root directory.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/stepflow-io/stepflow/pkg/persistence"
)

// Persistence implements persistence.Persistence on the file system.
type Persistence struct {
	root        string
	definitions *DefinitionRepository
	instances   *InstanceRepository
	steps       *StepInstanceRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
// A "file://" prefix on the root is accepted and stripped.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:        cleanRoot,
		definitions: NewDefinitionRepository(cleanRoot),
		instances:   NewInstanceRepository(cleanRoot),
		steps:       NewStepInstanceRepository(cleanRoot),
	}
}

// Definitions returns the definition repository.
func (p *Persistence) Definitions() persistence.DefinitionRepository {
	return p.definitions
}

// Instances returns the instance repository.
func (p *Persistence) Instances() persistence.InstanceRepository {
	return p.instances
}

// StepInstances returns the step instance repository.
func (p *Persistence) StepInstances() persistence.StepInstanceRepository {
	return p.steps
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. Nothing to do for files.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}
