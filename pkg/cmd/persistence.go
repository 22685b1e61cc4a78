// Package cmd provides common initialization for the command-line binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/persistence"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/persistence/file"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/persistence/memory"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/persistence/postgresql"
)

// NewPersistence selects the storage backend from the database URL scheme:
// postgres://... for PostgreSQL, memory:// for the in-memory double, and
// anything else is treated as a filesystem root.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgresql: %w", err)
		}

		return store, nil

	case databaseURL == "memory://":
		return memory.NewPersistence(), nil

	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://")), nil
	}
}
