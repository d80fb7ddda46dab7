package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/stepflow-io/stepflow/pkg/log"
)

func main() {
	command := &cli.Command{
		Name:                  "stepflow",
		Usage:                 "Create and manage workflow definitions",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewValidateCommand(),
			NewDefinitionsCommand(),
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("cli").Error("Command failed", "error", err)
		os.Exit(1)
	}
}
