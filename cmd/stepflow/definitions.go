package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/stepflow-io/stepflow/pkg/cmd"
	"github.com/stepflow-io/stepflow/pkg/loader"
)

func databaseURLFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "database-url",
		Usage:    "Database connection URL for persistence",
		Required: true,
		Sources:  cli.EnvVars("DATABASE_URL"),
	}
}

func NewDefinitionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "definitions",
		Aliases: []string{"d"},
		Usage:   "Manage workflow definitions",
		Commands: []*cli.Command{
			newRegisterCommand(),
			newListCommand(),
		},
	}
}

func newRegisterCommand() *cli.Command {
	return &cli.Command{
		Name:      "register",
		Aliases:   []string{"r"},
		Usage:     "Validate a definition file and save it to the store",
		ArgsUsage: "<file>",
		Flags:     []cli.Flag{databaseURLFlag()},
		Action: func(ctx context.Context, command *cli.Command) error {
			path := command.Args().First()
			if path == "" {
				return ErrNoFilesGiven
			}

			def, err := loader.NewLoader().LoadFile(path)
			if err != nil {
				return err
			}

			logger := slog.With("module", "cli")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				_ = persistence.Close(ctx)
			}()

			if err := persistence.Definitions().Save(ctx, def); err != nil {
				return fmt.Errorf("failed to save definition %s: %w", def.ID, err)
			}

			_, _ = fmt.Fprintf(os.Stdout, "Registered definition %s (version %d)\n", def.ID, def.Version)

			return nil
		},
	}
}

func newListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List registered workflow definitions",
		Flags:   []cli.Flag{databaseURLFlag()},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := slog.With("module", "cli")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				_ = persistence.Close(ctx)
			}()

			definitions, err := persistence.Definitions().List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list definitions: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tNAME\tVERSION\tSTEPS")

			for _, def := range definitions {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", def.ID, def.Name, def.Version, len(def.Steps))
			}

			return w.Flush()
		},
	}
}
