// Package postgresql provides the PostgreSQL persistence implementation.
// Entity graphs (nodes, edges, variables, active branches) are stored as
// JSONB documents next to the queryable key columns.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// database/sql driver for PostgreSQL.
	_ "github.com/lib/pq"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/persistence"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db                *sql.DB
	logger            *slog.Logger
	definitionRepo    *DefinitionRepository
	instanceRepo      *InstanceRepository
	taskRepo          *TaskRepository
	decisionTableRepo *DecisionTableRepository
}

// NewPersistence connects, migrates, and returns a PostgreSQL persistence
// layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())
	if err := migrationManager.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:                database,
		logger:            logger,
		definitionRepo:    &DefinitionRepository{db: database, logger: logger},
		instanceRepo:      &InstanceRepository{db: database, logger: logger},
		taskRepo:          &TaskRepository{db: database, logger: logger},
		decisionTableRepo: &DecisionTableRepository{db: database, logger: logger},
	}, nil
}

func (p *Persistence) DefinitionRepository() persistence.DefinitionRepository {
	return p.definitionRepo
}

func (p *Persistence) InstanceRepository() persistence.InstanceRepository {
	return p.instanceRepo
}

func (p *Persistence) TaskRepository() persistence.TaskRepository {
	return p.taskRepo
}

func (p *Persistence) DecisionTableRepository() persistence.DecisionTableRepository {
	return p.decisionTableRepo
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
