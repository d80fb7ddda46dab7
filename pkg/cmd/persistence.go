// Package cmd wires shared infrastructure for the service binaries.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/stepflow-io/stepflow/pkg/persistence"
	"github.com/stepflow-io/stepflow/pkg/persistence/file"
	"github.com/stepflow-io/stepflow/pkg/persistence/postgresql"
)

// NewPersistence creates the persistence backend for a database URL.
// "postgres://..." gets PostgreSQL, anything else is treated as a file
// root.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parseScheme(databaseURL) {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

func parseScheme(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return scheme
}
