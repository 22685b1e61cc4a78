package file

import (
	"context"
	"sort"
	"time"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/models"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/persistence"
)

const (
	kindDefinition    = "definitions"
	kindInstance      = "instances"
	kindTask          = "tasks"
	kindDecisionTable = "decision_tables"
)

// DefinitionRepository stores definition versions as JSON documents.
type DefinitionRepository struct {
	root string
}

func (r *DefinitionRepository) Save(_ context.Context, def *models.Definition) error {
	return writeEntity(r.root, kindDefinition, def.ID, def)
}

func (r *DefinitionRepository) GetByID(_ context.Context, id string) (*models.Definition, error) {
	def := &models.Definition{}
	if err := readEntity(r.root, kindDefinition, id, def, persistence.ErrDefinitionNotFound); err != nil {
		return nil, err
	}

	return def, nil
}

func (r *DefinitionRepository) GetByVersion(ctx context.Context, groupID string, version int) (*models.Definition, error) {
	defs, err := r.List(ctx, persistence.ListDefinitionsOptions{GroupID: groupID})
	if err != nil {
		return nil, err
	}

	for _, def := range defs {
		if def.Version == version {
			return def, nil
		}
	}

	return nil, persistence.NewStoreError("GetByVersion", kindDefinition, groupID, persistence.ErrDefinitionNotFound)
}

func (r *DefinitionRepository) GetActive(ctx context.Context, groupID string) (*models.Definition, error) {
	active := models.DefinitionStatusActive

	defs, err := r.List(ctx, persistence.ListDefinitionsOptions{GroupID: groupID, Status: &active})
	if err != nil {
		return nil, err
	}

	if len(defs) == 0 {
		return nil, persistence.NewStoreError("GetActive", kindDefinition, groupID, persistence.ErrActiveDefinitionNotFound)
	}

	return defs[0], nil
}

func (r *DefinitionRepository) List(ctx context.Context, opts persistence.ListDefinitionsOptions) ([]*models.Definition, error) {
	ids, err := listIDs(r.root, kindDefinition)
	if err != nil {
		return nil, err
	}

	out := make([]*models.Definition, 0, len(ids))

	for _, id := range ids {
		def, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if opts.GroupID != "" && def.GroupID != opts.GroupID {
			continue
		}

		if opts.Status != nil && def.Status != *opts.Status {
			continue
		}

		out = append(out, def)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].GroupID != out[j].GroupID {
			return out[i].GroupID < out[j].GroupID
		}

		return out[i].Version < out[j].Version
	})

	return out, nil
}

func (r *DefinitionRepository) Delete(_ context.Context, id string) error {
	return deleteEntity(r.root, kindDefinition, id, persistence.ErrDefinitionNotFound)
}

// InstanceRepository stores instances as JSON documents.
type InstanceRepository struct {
	root string
}

func (r *InstanceRepository) Save(_ context.Context, instance *models.Instance) error {
	return writeEntity(r.root, kindInstance, instance.ID, instance)
}

func (r *InstanceRepository) GetByID(_ context.Context, id string) (*models.Instance, error) {
	instance := &models.Instance{}
	if err := readEntity(r.root, kindInstance, id, instance, persistence.ErrInstanceNotFound); err != nil {
		return nil, err
	}

	return instance, nil
}

func (r *InstanceRepository) ListByDefinition(ctx context.Context, groupID string) ([]*models.Instance, error) {
	return r.list(ctx, func(instance *models.Instance) bool {
		return instance.DefinitionGroupID == groupID
	})
}

func (r *InstanceRepository) ListByStatus(ctx context.Context, status models.InstanceStatus) ([]*models.Instance, error) {
	return r.list(ctx, func(instance *models.Instance) bool {
		return instance.Status == status
	})
}

func (r *InstanceRepository) FindOverdue(ctx context.Context, now time.Time) ([]*models.Instance, error) {
	return r.list(ctx, func(instance *models.Instance) bool {
		return instance.Status == models.InstanceStatusRunning &&
			!instance.SLABreached &&
			instance.DueAt != nil && instance.DueAt.Before(now)
	})
}

func (r *InstanceRepository) list(ctx context.Context, keep func(*models.Instance) bool) ([]*models.Instance, error) {
	ids, err := listIDs(r.root, kindInstance)
	if err != nil {
		return nil, err
	}

	out := make([]*models.Instance, 0, len(ids))

	for _, id := range ids {
		instance, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if keep(instance) {
			out = append(out, instance)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})

	return out, nil
}

// TaskRepository stores tasks as JSON documents.
type TaskRepository struct {
	root string
}

func (r *TaskRepository) Save(_ context.Context, task *models.Task) error {
	return writeEntity(r.root, kindTask, task.ID, task)
}

func (r *TaskRepository) GetByID(_ context.Context, id string) (*models.Task, error) {
	task := &models.Task{}
	if err := readEntity(r.root, kindTask, id, task, persistence.ErrTaskNotFound); err != nil {
		return nil, err
	}

	return task, nil
}

func (r *TaskRepository) List(ctx context.Context, opts persistence.ListTasksOptions) ([]*models.Task, error) {
	return r.list(ctx, func(task *models.Task) bool {
		if opts.InstanceID != "" && task.InstanceID != opts.InstanceID {
			return false
		}

		if opts.Assignee != "" && task.Assignee != opts.Assignee {
			return false
		}

		if opts.Status != nil && task.Status != *opts.Status {
			return false
		}

		return true
	})
}

func (r *TaskRepository) ListOpenByInstance(ctx context.Context, instanceID string) ([]*models.Task, error) {
	return r.list(ctx, func(task *models.Task) bool {
		return task.InstanceID == instanceID && task.IsOpen()
	})
}

func (r *TaskRepository) FindOverdue(ctx context.Context, now time.Time) ([]*models.Task, error) {
	return r.list(ctx, func(task *models.Task) bool {
		return task.IsOpen() && !task.SLABreached &&
			task.DueAt != nil && task.DueAt.Before(now)
	})
}

func (r *TaskRepository) list(ctx context.Context, keep func(*models.Task) bool) ([]*models.Task, error) {
	ids, err := listIDs(r.root, kindTask)
	if err != nil {
		return nil, err
	}

	out := make([]*models.Task, 0, len(ids))

	for _, id := range ids {
		task, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if keep(task) {
			out = append(out, task)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, nil
}

// DecisionTableRepository stores decision tables as JSON documents.
type DecisionTableRepository struct {
	root string
}

func (r *DecisionTableRepository) Save(_ context.Context, table *models.DecisionTable) error {
	return writeEntity(r.root, kindDecisionTable, table.ID, table)
}

func (r *DecisionTableRepository) GetByID(_ context.Context, id string) (*models.DecisionTable, error) {
	table := &models.DecisionTable{}
	if err := readEntity(r.root, kindDecisionTable, id, table, persistence.ErrDecisionTableNotFound); err != nil {
		return nil, err
	}

	return table, nil
}

func (r *DecisionTableRepository) Delete(_ context.Context, id string) error {
	return deleteEntity(r.root, kindDecisionTable, id, persistence.ErrDecisionTableNotFound)
}
