// Package memory provides an in-memory persistence implementation used as a
// test double and for local development.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/models"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/persistence"
)

// Persistence implements persistence.Persistence with plain maps guarded by
// a single mutex. Entities are deep-copied on the way in and out so callers
// can never mutate stored state.
type Persistence struct {
	mu             sync.RWMutex
	definitions    map[string]*models.Definition
	instances      map[string]*models.Instance
	tasks          map[string]*models.Task
	decisionTables map[string]*models.DecisionTable
}

func NewPersistence() *Persistence {
	return &Persistence{
		definitions:    make(map[string]*models.Definition),
		instances:      make(map[string]*models.Instance),
		tasks:          make(map[string]*models.Task),
		decisionTables: make(map[string]*models.DecisionTable),
	}
}

func (p *Persistence) DefinitionRepository() persistence.DefinitionRepository {
	return &definitionRepository{p}
}

func (p *Persistence) InstanceRepository() persistence.InstanceRepository {
	return &instanceRepository{p}
}

func (p *Persistence) TaskRepository() persistence.TaskRepository {
	return &taskRepository{p}
}

func (p *Persistence) DecisionTableRepository() persistence.DecisionTableRepository {
	return &decisionTableRepository{p}
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// deepCopy round-trips through JSON. Slow but safe, and this store only
// backs tests and local runs.
func deepCopy[T any](in *T) *T {
	if in == nil {
		return nil
	}

	raw, err := json.Marshal(in)
	if err != nil {
		panic(err)
	}

	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		panic(err)
	}

	return out
}

type definitionRepository struct {
	p *Persistence
}

func (r *definitionRepository) Save(_ context.Context, def *models.Definition) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.definitions[def.ID] = deepCopy(def)

	return nil
}

func (r *definitionRepository) GetByID(_ context.Context, id string) (*models.Definition, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	def, found := r.p.definitions[id]
	if !found {
		return nil, persistence.NewStoreError("GetByID", "definition", id, persistence.ErrDefinitionNotFound)
	}

	return deepCopy(def), nil
}

func (r *definitionRepository) GetByVersion(_ context.Context, groupID string, version int) (*models.Definition, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	for _, def := range r.p.definitions {
		if def.GroupID == groupID && def.Version == version {
			return deepCopy(def), nil
		}
	}

	return nil, persistence.NewStoreError("GetByVersion", "definition", groupID, persistence.ErrDefinitionNotFound)
}

func (r *definitionRepository) GetActive(_ context.Context, groupID string) (*models.Definition, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	for _, def := range r.p.definitions {
		if def.GroupID == groupID && def.Status == models.DefinitionStatusActive {
			return deepCopy(def), nil
		}
	}

	return nil, persistence.NewStoreError("GetActive", "definition", groupID, persistence.ErrActiveDefinitionNotFound)
}

func (r *definitionRepository) List(_ context.Context, opts persistence.ListDefinitionsOptions) ([]*models.Definition, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var out []*models.Definition

	for _, def := range r.p.definitions {
		if opts.GroupID != "" && def.GroupID != opts.GroupID {
			continue
		}

		if opts.Status != nil && def.Status != *opts.Status {
			continue
		}

		out = append(out, deepCopy(def))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].GroupID != out[j].GroupID {
			return out[i].GroupID < out[j].GroupID
		}

		return out[i].Version < out[j].Version
	})

	return out, nil
}

func (r *definitionRepository) Delete(_ context.Context, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, found := r.p.definitions[id]; !found {
		return persistence.NewStoreError("Delete", "definition", id, persistence.ErrDefinitionNotFound)
	}

	delete(r.p.definitions, id)

	return nil
}

type instanceRepository struct {
	p *Persistence
}

func (r *instanceRepository) Save(_ context.Context, instance *models.Instance) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.instances[instance.ID] = deepCopy(instance)

	return nil
}

func (r *instanceRepository) GetByID(_ context.Context, id string) (*models.Instance, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	instance, found := r.p.instances[id]
	if !found {
		return nil, persistence.NewStoreError("GetByID", "instance", id, persistence.ErrInstanceNotFound)
	}

	return deepCopy(instance), nil
}

func (r *instanceRepository) ListByDefinition(_ context.Context, groupID string) ([]*models.Instance, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var out []*models.Instance

	for _, instance := range r.p.instances {
		if instance.DefinitionGroupID == groupID {
			out = append(out, deepCopy(instance))
		}
	}

	sortInstances(out)

	return out, nil
}

func (r *instanceRepository) ListByStatus(_ context.Context, status models.InstanceStatus) ([]*models.Instance, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var out []*models.Instance

	for _, instance := range r.p.instances {
		if instance.Status == status {
			out = append(out, deepCopy(instance))
		}
	}

	sortInstances(out)

	return out, nil
}

func (r *instanceRepository) FindOverdue(_ context.Context, now time.Time) ([]*models.Instance, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var out []*models.Instance

	for _, instance := range r.p.instances {
		if instance.Status != models.InstanceStatusRunning || instance.SLABreached {
			continue
		}

		if instance.DueAt != nil && instance.DueAt.Before(now) {
			out = append(out, deepCopy(instance))
		}
	}

	sortInstances(out)

	return out, nil
}

func sortInstances(instances []*models.Instance) {
	sort.Slice(instances, func(i, j int) bool {
		return instances[i].StartedAt.Before(instances[j].StartedAt)
	})
}

type taskRepository struct {
	p *Persistence
}

func (r *taskRepository) Save(_ context.Context, task *models.Task) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.tasks[task.ID] = deepCopy(task)

	return nil
}

func (r *taskRepository) GetByID(_ context.Context, id string) (*models.Task, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	task, found := r.p.tasks[id]
	if !found {
		return nil, persistence.NewStoreError("GetByID", "task", id, persistence.ErrTaskNotFound)
	}

	return deepCopy(task), nil
}

func (r *taskRepository) List(_ context.Context, opts persistence.ListTasksOptions) ([]*models.Task, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var out []*models.Task

	for _, task := range r.p.tasks {
		if opts.InstanceID != "" && task.InstanceID != opts.InstanceID {
			continue
		}

		if opts.Assignee != "" && task.Assignee != opts.Assignee {
			continue
		}

		if opts.Status != nil && task.Status != *opts.Status {
			continue
		}

		out = append(out, deepCopy(task))
	}

	sortTasks(out)

	return out, nil
}

func (r *taskRepository) ListOpenByInstance(_ context.Context, instanceID string) ([]*models.Task, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var out []*models.Task

	for _, task := range r.p.tasks {
		if task.InstanceID == instanceID && task.IsOpen() {
			out = append(out, deepCopy(task))
		}
	}

	sortTasks(out)

	return out, nil
}

func (r *taskRepository) FindOverdue(_ context.Context, now time.Time) ([]*models.Task, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var out []*models.Task

	for _, task := range r.p.tasks {
		if !task.IsOpen() || task.SLABreached {
			continue
		}

		if task.DueAt != nil && task.DueAt.Before(now) {
			out = append(out, deepCopy(task))
		}
	}

	sortTasks(out)

	return out, nil
}

func sortTasks(tasks []*models.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}

type decisionTableRepository struct {
	p *Persistence
}

func (r *decisionTableRepository) Save(_ context.Context, table *models.DecisionTable) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.decisionTables[table.ID] = deepCopy(table)

	return nil
}

func (r *decisionTableRepository) GetByID(_ context.Context, id string) (*models.DecisionTable, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	table, found := r.p.decisionTables[id]
	if !found {
		return nil, persistence.NewStoreError("GetByID", "decision table", id, persistence.ErrDecisionTableNotFound)
	}

	return deepCopy(table), nil
}

func (r *decisionTableRepository) Delete(_ context.Context, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, found := r.p.decisionTables[id]; !found {
		return persistence.NewStoreError("Delete", "decision table", id, persistence.ErrDecisionTableNotFound)
	}

	delete(r.p.decisionTables, id)

	return nil
}
