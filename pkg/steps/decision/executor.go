// Package decision implements the step kind whose sole job is selecting
// the next step id. Decision steps never perform an effect.
package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stepflow-io/stepflow/pkg/dispatch"
	"github.com/stepflow-io/stepflow/pkg/expression"
	"github.com/stepflow-io/stepflow/pkg/models"
	"github.com/stepflow-io/stepflow/pkg/steps"
)

// ErrNoRouteMatched indicates no route condition matched and no default
// route is configured. This always fails the workflow, never stalls it.
var ErrNoRouteMatched = errors.New("no decision route matched")

// route is one entry of the decision step's "routes" configuration.
type route struct {
	Name       string
	NextStepID string
	Condition  string
}

// Executor handles decision steps in two modes: condition mode evaluates
// each route's guard in declared order, first match wins; service mode
// asks a named service to pick the route.
type Executor struct {
	evaluator expression.Evaluator
	invoker   dispatch.Invoker
	logger    *slog.Logger
}

// NewExecutor creates a decision executor.
func NewExecutor(evaluator expression.Evaluator, invoker dispatch.Invoker, logger *slog.Logger) *Executor {
	return &Executor{
		evaluator: evaluator,
		invoker:   invoker,
		logger:    logger.With("module", "decision_step"),
	}
}

// CanExecute reports whether this executor handles the given kind.
func (e *Executor) CanExecute(kind models.StepKind) bool {
	return kind == models.StepKindDecision
}

// Execute selects the next step id.
func (e *Executor) Execute(ctx context.Context, step *models.StepInstance, def *models.StepDefinition, instance *models.WorkflowInstance) (*models.StepExecutionResult, error) {
	routes := parseRoutes(def.Config)

	var (
		next string
		err  error
	)

	if service := steps.StringOption(def.Config, "service"); service != "" {
		next, err = e.selectByService(ctx, service, def, routes, instance.Variables)
	} else {
		next = e.selectByCondition(routes, instance.Variables)
	}

	if err != nil {
		return models.FailedResult(err.Error()), nil
	}

	if next == "" {
		next = steps.StringOption(def.Config, "default_next_step_id")
	}

	if next == "" {
		return models.FailedResult(fmt.Sprintf("step %s: %v", def.ID, ErrNoRouteMatched)), nil
	}

	return models.RoutedResult(next, map[string]any{"selected_step_id": next}), nil
}

// selectByCondition returns the first route whose condition holds. An
// empty condition always holds.
func (e *Executor) selectByCondition(routes []route, variables map[string]any) string {
	for _, r := range routes {
		if r.Condition == "" || e.evaluator.EvaluateCondition(r.Condition, variables) {
			return r.NextStepID
		}
	}

	return ""
}

// selectByService invokes the configured service and interprets its result
// as either a literal next step id, a structured result carrying
// "next_step_id", or a "route_name" matched case-insensitively against the
// configured routes.
func (e *Executor) selectByService(ctx context.Context, service string, def *models.StepDefinition, routes []route, variables map[string]any) (string, error) {
	method := steps.StringOption(def.Config, "method")
	params := steps.ResolveBindings(steps.MapOption(def.Config, "inputs"), variables)

	result, err := e.invoker.Invoke(ctx, service, method, params)
	if err != nil {
		return "", fmt.Errorf("decision service failed: %w", err)
	}

	switch value := result.(type) {
	case string:
		return value, nil
	case map[string]any:
		if next, ok := value["next_step_id"].(string); ok && next != "" {
			return next, nil
		}

		if name, ok := value["route_name"].(string); ok && name != "" {
			for _, r := range routes {
				if strings.EqualFold(r.Name, name) {
					return r.NextStepID, nil
				}
			}

			return "", fmt.Errorf("decision service selected unknown route %q", name)
		}

		return "", nil
	default:
		return "", fmt.Errorf("decision service returned unusable result %T", result)
	}
}

func parseRoutes(config map[string]any) []route {
	raw := steps.SliceOption(config, "routes")
	routes := make([]route, 0, len(raw))

	for _, entry := range raw {
		fields, ok := entry.(map[string]any)
		if !ok {
			continue
		}

		routes = append(routes, route{
			Name:       steps.StringOption(fields, "name"),
			NextStepID: steps.StringOption(fields, "next_step_id"),
			Condition:  steps.StringOption(fields, "condition"),
		})
	}

	return routes
}
