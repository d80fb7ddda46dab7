// Package loader parses and validates workflow definitions. It is the
// single entry point for definitions coming from files or the API:
// everything it returns is schema-valid, structurally sound and has its
// routes normalized.
package loader

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"

	"github.com/stepflow-io/stepflow/pkg/models"
)

//go:embed schema.json
var definitionSchema string

// ErrInvalidDefinition tags every validation failure so callers can map
// it to a client error.
var ErrInvalidDefinition = errors.New("invalid workflow definition")

// Loader validates raw definition documents into domain models.
type Loader struct {
	schema   gojsonschema.JSONLoader
	validate *validator.Validate
}

// NewLoader creates a definition loader.
func NewLoader() *Loader {
	return &Loader{
		schema:   gojsonschema.NewStringLoader(definitionSchema),
		validate: validator.New(),
	}
}

// Load parses a JSON definition document, validating it against the
// schema, the struct tags and the structural invariants, and normalizes
// every step's routes.
func (l *Loader) Load(data []byte) (*models.WorkflowDefinition, error) {
	if err := l.validateSchema(data); err != nil {
		return nil, err
	}

	var def models.WorkflowDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDefinition, err)
	}

	if err := l.validate.Struct(&def); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDefinition, err)
	}

	if err := Check(&def); err != nil {
		return nil, err
	}

	for _, step := range def.Steps {
		step.NormalizeRoutes()
	}

	return &def, nil
}

// LoadFile loads a definition from a JSON file.
func (l *Loader) LoadFile(path string) (*models.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file %s: %w", path, err)
	}

	return l.Load(data)
}

func (l *Loader) validateSchema(data []byte) error {
	result, err := gojsonschema.Validate(l.schema, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDefinition, err)
	}

	if result.Valid() {
		return nil
	}

	messages := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		messages = append(messages, e.String())
	}

	return fmt.Errorf("%w: %s", ErrInvalidDefinition, strings.Join(messages, "; "))
}

// Check verifies the structural invariants of a definition: unique step
// ids, a resolvable initial step, route targets that exist, and decision
// routing kept inside the decision step's config.
func Check(def *models.WorkflowDefinition) error {
	seen := make(map[string]struct{}, len(def.Steps))

	for _, step := range def.Steps {
		if _, dup := seen[step.ID]; dup {
			return fmt.Errorf("%w: duplicate step id %q", ErrInvalidDefinition, step.ID)
		}

		seen[step.ID] = struct{}{}
	}

	if _, found := def.StepByID(def.InitialStepID); !found {
		return fmt.Errorf("%w: initial step %q does not exist", ErrInvalidDefinition, def.InitialStepID)
	}

	for _, step := range def.Steps {
		if step.Kind == models.StepKindDecision &&
			(step.NextStepID != nil || len(step.Transitions) > 0) {
			return fmt.Errorf("%w: decision step %q must route through its config, not next_step_id or transitions",
				ErrInvalidDefinition, step.ID)
		}

		if step.NextStepID != nil && *step.NextStepID != "" {
			if _, found := def.StepByID(*step.NextStepID); !found {
				return fmt.Errorf("%w: step %q routes to unknown step %q",
					ErrInvalidDefinition, step.ID, *step.NextStepID)
			}
		}

		for _, t := range step.Transitions {
			if _, found := def.StepByID(t.TargetStepID); !found {
				return fmt.Errorf("%w: step %q transitions to unknown step %q",
					ErrInvalidDefinition, step.ID, t.TargetStepID)
			}
		}
	}

	return nil
}
