// Package persistence provides the data storage abstraction for process
// definitions, instances, tasks and decision tables. There is a single
// authoritative store behind these interfaces; the in-memory implementation
// exists as a test double, not a production path.
package persistence

import (
	"context"
	"time"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/models"
)

// Persistence aggregates the repositories backed by one store.
type Persistence interface {
	DefinitionRepository() DefinitionRepository
	InstanceRepository() InstanceRepository
	TaskRepository() TaskRepository
	DecisionTableRepository() DecisionTableRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListDefinitionsOptions filters definition listings.
type ListDefinitionsOptions struct {
	GroupID string
	Status  *models.DefinitionStatus
}

// DefinitionRepository stores definition versions. Save overwrites by ID;
// published versions are immutable by convention and implementations return
// deep copies so callers cannot mutate stored snapshots.
type DefinitionRepository interface {
	Save(ctx context.Context, def *models.Definition) error
	GetByID(ctx context.Context, id string) (*models.Definition, error)
	GetByVersion(ctx context.Context, groupID string, version int) (*models.Definition, error)
	GetActive(ctx context.Context, groupID string) (*models.Definition, error)
	List(ctx context.Context, opts ListDefinitionsOptions) ([]*models.Definition, error)
	Delete(ctx context.Context, id string) error
}

// InstanceRepository stores process instances.
type InstanceRepository interface {
	Save(ctx context.Context, instance *models.Instance) error
	GetByID(ctx context.Context, id string) (*models.Instance, error)
	ListByDefinition(ctx context.Context, groupID string) ([]*models.Instance, error)
	ListByStatus(ctx context.Context, status models.InstanceStatus) ([]*models.Instance, error)

	// FindOverdue returns running instances whose DueAt has passed and whose
	// SLA breach has not been recorded yet.
	FindOverdue(ctx context.Context, now time.Time) ([]*models.Instance, error)
}

// ListTasksOptions filters task listings.
type ListTasksOptions struct {
	InstanceID string
	Assignee   string
	Status     *models.TaskStatus
}

// TaskRepository stores human-approval tasks.
type TaskRepository interface {
	Save(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id string) (*models.Task, error)
	List(ctx context.Context, opts ListTasksOptions) ([]*models.Task, error)
	ListOpenByInstance(ctx context.Context, instanceID string) ([]*models.Task, error)

	// FindOverdue returns open tasks whose DueAt has passed and whose SLA
	// breach has not been recorded yet.
	FindOverdue(ctx context.Context, now time.Time) ([]*models.Task, error)
}

// DecisionTableRepository stores externally managed decision tables.
type DecisionTableRepository interface {
	Save(ctx context.Context, table *models.DecisionTable) error
	GetByID(ctx context.Context, id string) (*models.DecisionTable, error)
	Delete(ctx context.Context, id string) error
}
