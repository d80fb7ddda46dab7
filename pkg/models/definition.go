// Package models defines the core domain models for workflow orchestration.
package models

// StepKind identifies which executor handles a step.
type StepKind string

const (
	StepKindInteraction StepKind = "interaction" // Waits for an external actor
	StepKindScheduled   StepKind = "scheduled"   // Waits until a computed point in time
	StepKindBusiness    StepKind = "business"    // Invokes a named business service
	StepKindDecision    StepKind = "decision"    // Selects the next step, no side effects
	StepKindSubWorkflow StepKind = "subworkflow" // Starts a nested workflow instance
)

// WorkflowDefinition is the immutable template a workflow instance runs against.
type WorkflowDefinition struct {
	ID            string            `json:"id"              validate:"required"`
	Name          string            `json:"name"            validate:"required,min=3"`
	Version       int               `json:"version"`
	Description   string            `json:"description,omitempty"`
	InitialStepID string            `json:"initial_step_id" validate:"required"`
	Steps         []*StepDefinition `json:"steps"           validate:"required,min=1,dive"`
	Variables     map[string]any    `json:"variables,omitempty"`
}

// StepByID returns the step definition with the given id, if any.
func (d *WorkflowDefinition) StepByID(id string) (*StepDefinition, bool) {
	for _, step := range d.Steps {
		if step.ID == id {
			return step, true
		}
	}

	return nil, false
}

// StepDefinition describes one step of a workflow definition. Config carries
// the kind-specific configuration bag parsed by the matching executor.
type StepDefinition struct {
	ID     string         `json:"id"   validate:"required"`
	Name   string         `json:"name" validate:"required"`
	Kind   StepKind       `json:"kind" validate:"required,oneof=interaction scheduled business decision subworkflow"`
	Config map[string]any `json:"config,omitempty"`

	NextStepID *string `json:"next_step_id,omitempty"`

	// Deprecated: Transitions is the legacy conditional transition list. New
	// definitions should use NextStepID or a decision step. The loader folds
	// both forms into Routes.
	Transitions []*Transition `json:"transitions,omitempty"`

	// Routes is the normalized ordered route list produced at load time from
	// NextStepID and Transitions. First matching route wins.
	Routes []Route `json:"routes,omitempty"`
}

// Transition is the deprecated conditional transition form.
type Transition struct {
	TargetStepID string `json:"target_step_id" validate:"required"`
	Condition    string `json:"condition,omitempty"`
	Label        string `json:"label,omitempty"`
}

// Route maps a completed step to the next step id, optionally guarded by a
// condition. An empty condition always matches.
type Route struct {
	NextStepID string `json:"next_step_id"`
	Condition  string `json:"condition,omitempty"`
	Label      string `json:"label,omitempty"`
}

// NormalizeRoutes folds NextStepID and the deprecated Transitions list into
// the Routes slice, preserving resolution precedence: an explicit NextStepID
// is an unconditional first route, legacy transitions follow in declared
// order. Already-normalized steps are left untouched.
func (s *StepDefinition) NormalizeRoutes() {
	if len(s.Routes) > 0 {
		return
	}

	if s.NextStepID != nil && *s.NextStepID != "" {
		s.Routes = append(s.Routes, Route{NextStepID: *s.NextStepID})
	}

	for _, t := range s.Transitions {
		s.Routes = append(s.Routes, Route{
			NextStepID: t.TargetStepID,
			Condition:  t.Condition,
			Label:      t.Label,
		})
	}
}

// EffectiveRoutes returns the normalized routes, normalizing on demand for
// definitions built programmatically without going through the loader.
func (s *StepDefinition) EffectiveRoutes() []Route {
	if len(s.Routes) == 0 {
		s.NormalizeRoutes()
	}

	return s.Routes
}
