package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/stepflow-io/stepflow/pkg/loader"
)

// Static error variables for linter compliance.
var (
	ErrNoFilesGiven       = errors.New("at least one definition file is required")
	ErrInvalidDefinitions = errors.New("invalid definition files")
)

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Validate workflow definition files",
		ArgsUsage: "<file> [<file>...]",
		Action: func(ctx context.Context, command *cli.Command) error {
			files := command.Args().Slice()
			if len(files) == 0 {
				return ErrNoFilesGiven
			}

			docLoader := loader.NewLoader()
			invalid := 0

			for _, path := range files {
				def, err := docLoader.LoadFile(path)
				if err != nil {
					_, _ = fmt.Fprintf(os.Stdout, "%s: INVALID: %v\n", path, err)
					invalid++

					continue
				}

				_, _ = fmt.Fprintf(os.Stdout, "%s: OK (%s, %d steps)\n", path, def.ID, len(def.Steps))
			}

			if invalid > 0 {
				return fmt.Errorf("%w: %d", ErrInvalidDefinitions, invalid)
			}

			return nil
		},
	}
}
