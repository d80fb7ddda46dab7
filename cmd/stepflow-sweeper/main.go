package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/stepflow-io/stepflow/pkg/cmd"
	"github.com/stepflow-io/stepflow/pkg/log"
	"github.com/stepflow-io/stepflow/pkg/otelhelper"
)

func main() {
	command := &cli.Command{
		Name:                  "stepflow-sweeper",
		Usage:                 "Re-drive due scheduled steps and business retries",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "sweeper-id",
				Aliases: []string{"id"},
				Usage:   "Custom sweeper ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("SWEEPER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel, none)",
				Value:   "none",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the external task queue (optional)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "task-queue",
				Usage:   "Redis queue name for external tasks",
				Value:   "stepflow:tasks",
				Sources: cli.EnvVars("TASK_QUEUE"),
			},
			&cli.StringFlag{
				Name:    "schedule",
				Usage:   "Cron expression controlling how often due steps are swept",
				Value:   "* * * * *",
				Sources: cli.EnvVars("SWEEP_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			sweeperID := command.String("sweeper-id")
			if sweeperID == "" {
				sweeperID = fmt.Sprintf("sweeper-%s", uuid.New().String()[:8])
			}

			logger := log.WithModule("sweeper").With("sweeper_id", sweeperID)
			logger.InfoContext(ctx, "Initializing Stepflow Sweeper")

			tracerProvider, err := otelhelper.InitTracer(ctx, "stepflow-sweeper")
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}

			defer func() {
				if err := tracerProvider.Shutdown(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
				}
			}()

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "sweeper", logger)
			if err != nil {
				return err
			}

			if eventBus != nil {
				defer func() {
					if err := eventBus.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
					}
				}()
			}

			taskManager, err := cmd.NewTaskManager(ctx, command.String("redis-url"),
				command.String("task-queue"), logger)
			if err != nil {
				return err
			}

			eng := cmd.NewEngine(cmd.EngineOptions{
				Persistence: persistence,
				EventBus:    eventBus,
				TaskManager: taskManager,
				Logger:      logger,
			})

			sweeper := NewSweeper(sweeperID, eng, command.String("schedule"), logger)

			return sweeper.Start(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("sweeper").Error("Sweeper exited", "error", err)
		os.Exit(1)
	}
}
