package cmd

import (
	"context"
	"log/slog"

	"github.com/stepflow-io/stepflow/pkg/dispatch"
	"github.com/stepflow-io/stepflow/pkg/engine"
	"github.com/stepflow-io/stepflow/pkg/eventbus"
	"github.com/stepflow-io/stepflow/pkg/expression"
	"github.com/stepflow-io/stepflow/pkg/persistence"
	"github.com/stepflow-io/stepflow/pkg/steps"
	"github.com/stepflow-io/stepflow/pkg/steps/business"
	"github.com/stepflow-io/stepflow/pkg/steps/decision"
	"github.com/stepflow-io/stepflow/pkg/steps/interaction"
	"github.com/stepflow-io/stepflow/pkg/steps/scheduled"
	"github.com/stepflow-io/stepflow/pkg/steps/subworkflow"
	"github.com/stepflow-io/stepflow/pkg/tasks"
)

// EngineOptions carries the collaborators a service binary assembled for
// its engine.
type EngineOptions struct {
	Persistence persistence.Persistence
	EventBus    eventbus.EventBus
	TaskManager tasks.Manager
	Services    *dispatch.Registry
	Logger      *slog.Logger
}

// NewEngine assembles an engine with every step kind registered.
func NewEngine(opts EngineOptions) *engine.Engine {
	logger := opts.Logger
	evaluator := expression.NewEvaluator(logger)

	services := opts.Services
	if services == nil {
		services = dispatch.NewRegistry(logger)
	}

	registry := steps.NewRegistry()

	var engineOpts []engine.Option
	if opts.EventBus != nil {
		engineOpts = append(engineOpts, engine.WithEventBus(opts.EventBus))
	}

	if opts.TaskManager != nil {
		engineOpts = append(engineOpts, engine.WithTaskManager(opts.TaskManager))
	}

	eng := engine.NewEngine(opts.Persistence, registry, evaluator, logger, engineOpts...)

	registry.Register(interaction.NewExecutor(opts.TaskManager, logger))
	registry.Register(scheduled.NewExecutor(evaluator, logger))
	registry.Register(business.NewExecutor(services, logger))
	registry.Register(decision.NewExecutor(evaluator, services, logger))
	registry.Register(subworkflow.NewExecutor(eng, logger))

	return eng
}

// NewTaskManager creates the redis task queue manager when a URL is
// configured; an empty URL disables external tasks.
func NewTaskManager(ctx context.Context, redisURL, queue string, logger *slog.Logger) (tasks.Manager, error) {
	if redisURL == "" {
		return nil, nil
	}

	return tasks.NewRedisQueueManager(ctx, redisURL, queue, logger)
}
