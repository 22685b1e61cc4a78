package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/models"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/persistence"
)

// The full entity is serialized into the JSONB document column; the key
// columns exist only so queries and indexes stay in SQL. Reading scans the
// document and ignores the key columns.

func marshalDocument(entity any) ([]byte, error) {
	raw, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}

	return raw, nil
}

func scanDocument[T any](row interface{ Scan(...any) error }, notFound error) (*T, error) {
	var raw []byte

	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound
		}

		return nil, fmt.Errorf("failed to scan document: %w", err)
	}

	entity := new(T)
	if err := json.Unmarshal(raw, entity); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}

	return entity, nil
}

func collectDocuments[T any](ctx context.Context, logger *slog.Logger, rows *sql.Rows) ([]*T, error) {
	defer func() {
		if err := rows.Close(); err != nil {
			logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	out := make([]*T, 0)

	for rows.Next() {
		var raw []byte

		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}

		entity := new(T)
		if err := json.Unmarshal(raw, entity); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document: %w", err)
		}

		out = append(out, entity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	return out, nil
}

// DefinitionRepository handles definition-related database operations.
type DefinitionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *DefinitionRepository) Save(ctx context.Context, def *models.Definition) error {
	document, err := marshalDocument(def)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO definitions (id, group_id, version, name, status, owner, document, created_at, updated_at, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			document = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at,
			published_at = EXCLUDED.published_at
	`

	_, err = r.db.ExecContext(ctx, query,
		def.ID, def.GroupID, def.Version, def.Name, def.Status, def.Owner,
		document, def.CreatedAt, def.UpdatedAt, def.PublishedAt)
	if err != nil {
		return persistence.NewStoreError("Save", "definition", def.ID, err)
	}

	return nil
}

func (r *DefinitionRepository) GetByID(ctx context.Context, id string) (*models.Definition, error) {
	row := r.db.QueryRowContext(ctx, "SELECT document FROM definitions WHERE id = $1", id)

	def, err := scanDocument[models.Definition](row, persistence.ErrDefinitionNotFound)
	if err != nil {
		return nil, persistence.NewStoreError("GetByID", "definition", id, err)
	}

	return def, nil
}

func (r *DefinitionRepository) GetByVersion(ctx context.Context, groupID string, version int) (*models.Definition, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT document FROM definitions WHERE group_id = $1 AND version = $2", groupID, version)

	def, err := scanDocument[models.Definition](row, persistence.ErrDefinitionNotFound)
	if err != nil {
		return nil, persistence.NewStoreError("GetByVersion", "definition", groupID, err)
	}

	return def, nil
}

func (r *DefinitionRepository) GetActive(ctx context.Context, groupID string) (*models.Definition, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT document FROM definitions WHERE group_id = $1 AND status = $2",
		groupID, models.DefinitionStatusActive)

	def, err := scanDocument[models.Definition](row, persistence.ErrActiveDefinitionNotFound)
	if err != nil {
		return nil, persistence.NewStoreError("GetActive", "definition", groupID, err)
	}

	return def, nil
}

func (r *DefinitionRepository) List(ctx context.Context, opts persistence.ListDefinitionsOptions) ([]*models.Definition, error) {
	query := "SELECT document FROM definitions WHERE 1=1"
	args := []any{}

	if opts.GroupID != "" {
		args = append(args, opts.GroupID)
		query += fmt.Sprintf(" AND group_id = $%d", len(args))
	}

	if opts.Status != nil {
		args = append(args, *opts.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	query += " ORDER BY group_id, version"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query definitions: %w", err)
	}

	return collectDocuments[models.Definition](ctx, r.logger, rows)
}

func (r *DefinitionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM definitions WHERE id = $1", id)
	if err != nil {
		return persistence.NewStoreError("Delete", "definition", id, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return persistence.NewStoreError("Delete", "definition", id, persistence.ErrDefinitionNotFound)
	}

	return nil
}

// InstanceRepository handles instance-related database operations.
type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *InstanceRepository) Save(ctx context.Context, instance *models.Instance) error {
	document, err := marshalDocument(instance)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO instances (id, definition_group_id, definition_version, status, started_by, started_at, completed_at, due_at, sla_breached, document)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at,
			due_at = EXCLUDED.due_at,
			sla_breached = EXCLUDED.sla_breached,
			document = EXCLUDED.document
	`

	_, err = r.db.ExecContext(ctx, query,
		instance.ID, instance.DefinitionGroupID, instance.DefinitionVersion, instance.Status,
		instance.StartedBy, instance.StartedAt, instance.CompletedAt, instance.DueAt,
		instance.SLABreached, document)
	if err != nil {
		return persistence.NewStoreError("Save", "instance", instance.ID, err)
	}

	return nil
}

func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.Instance, error) {
	row := r.db.QueryRowContext(ctx, "SELECT document FROM instances WHERE id = $1", id)

	instance, err := scanDocument[models.Instance](row, persistence.ErrInstanceNotFound)
	if err != nil {
		return nil, persistence.NewStoreError("GetByID", "instance", id, err)
	}

	return instance, nil
}

func (r *InstanceRepository) ListByDefinition(ctx context.Context, groupID string) ([]*models.Instance, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT document FROM instances WHERE definition_group_id = $1 ORDER BY started_at", groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}

	return collectDocuments[models.Instance](ctx, r.logger, rows)
}

func (r *InstanceRepository) ListByStatus(ctx context.Context, status models.InstanceStatus) ([]*models.Instance, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT document FROM instances WHERE status = $1 ORDER BY started_at", status)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}

	return collectDocuments[models.Instance](ctx, r.logger, rows)
}

func (r *InstanceRepository) FindOverdue(ctx context.Context, now time.Time) ([]*models.Instance, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT document FROM instances
		WHERE status = $1 AND sla_breached = FALSE AND due_at IS NOT NULL AND due_at < $2
		ORDER BY due_at
	`, models.InstanceStatusRunning, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue instances: %w", err)
	}

	return collectDocuments[models.Instance](ctx, r.logger, rows)
}

// TaskRepository handles task-related database operations.
type TaskRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *TaskRepository) Save(ctx context.Context, task *models.Task) error {
	document, err := marshalDocument(task)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tasks (id, instance_id, node_id, assignee, status, due_at, sla_breached, created_at, document)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			assignee = EXCLUDED.assignee,
			status = EXCLUDED.status,
			due_at = EXCLUDED.due_at,
			sla_breached = EXCLUDED.sla_breached,
			document = EXCLUDED.document
	`

	_, err = r.db.ExecContext(ctx, query,
		task.ID, task.InstanceID, task.NodeID, task.Assignee, task.Status,
		task.DueAt, task.SLABreached, task.CreatedAt, document)
	if err != nil {
		return persistence.NewStoreError("Save", "task", task.ID, err)
	}

	return nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	row := r.db.QueryRowContext(ctx, "SELECT document FROM tasks WHERE id = $1", id)

	task, err := scanDocument[models.Task](row, persistence.ErrTaskNotFound)
	if err != nil {
		return nil, persistence.NewStoreError("GetByID", "task", id, err)
	}

	return task, nil
}

func (r *TaskRepository) List(ctx context.Context, opts persistence.ListTasksOptions) ([]*models.Task, error) {
	query := "SELECT document FROM tasks WHERE 1=1"
	args := []any{}

	if opts.InstanceID != "" {
		args = append(args, opts.InstanceID)
		query += fmt.Sprintf(" AND instance_id = $%d", len(args))
	}

	if opts.Assignee != "" {
		args = append(args, opts.Assignee)
		query += fmt.Sprintf(" AND assignee = $%d", len(args))
	}

	if opts.Status != nil {
		args = append(args, *opts.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	query += " ORDER BY created_at"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	return collectDocuments[models.Task](ctx, r.logger, rows)
}

func (r *TaskRepository) ListOpenByInstance(ctx context.Context, instanceID string) ([]*models.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT document FROM tasks
		WHERE instance_id = $1 AND status IN ($2, $3)
		ORDER BY created_at
	`, instanceID, models.TaskStatusPending, models.TaskStatusClaimed)
	if err != nil {
		return nil, fmt.Errorf("failed to query open tasks: %w", err)
	}

	return collectDocuments[models.Task](ctx, r.logger, rows)
}

func (r *TaskRepository) FindOverdue(ctx context.Context, now time.Time) ([]*models.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT document FROM tasks
		WHERE status IN ($1, $2) AND sla_breached = FALSE AND due_at IS NOT NULL AND due_at < $3
		ORDER BY due_at
	`, models.TaskStatusPending, models.TaskStatusClaimed, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue tasks: %w", err)
	}

	return collectDocuments[models.Task](ctx, r.logger, rows)
}

// DecisionTableRepository handles decision-table database operations.
type DecisionTableRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *DecisionTableRepository) Save(ctx context.Context, table *models.DecisionTable) error {
	document, err := marshalDocument(table)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO decision_tables (id, name, document)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, document = EXCLUDED.document
	`

	if _, err := r.db.ExecContext(ctx, query, table.ID, table.Name, document); err != nil {
		return persistence.NewStoreError("Save", "decision table", table.ID, err)
	}

	return nil
}

func (r *DecisionTableRepository) GetByID(ctx context.Context, id string) (*models.DecisionTable, error) {
	row := r.db.QueryRowContext(ctx, "SELECT document FROM decision_tables WHERE id = $1", id)

	table, err := scanDocument[models.DecisionTable](row, persistence.ErrDecisionTableNotFound)
	if err != nil {
		return nil, persistence.NewStoreError("GetByID", "decision table", id, err)
	}

	return table, nil
}

func (r *DecisionTableRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM decision_tables WHERE id = $1", id)
	if err != nil {
		return persistence.NewStoreError("Delete", "decision table", id, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return persistence.NewStoreError("Delete", "decision table", id, persistence.ErrDecisionTableNotFound)
	}

	return nil
}
