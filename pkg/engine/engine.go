// Package engine executes process instances: it walks the published graph,
// dispatches nodes, suspends branches on approvals and drives instances to a
// terminal status.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/eventbus"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/events"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/expression"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/models"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/persistence"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/protocol"
)

// TaskService is the slice of the task manager the engine depends on. The
// manager calls back through CompleteActivation when a task resolves.
type TaskService interface {
	CreateTask(ctx context.Context, params TaskParams) (*models.Task, error)
	CancelForInstance(ctx context.Context, instanceID string) (int, error)
	ListOpen(ctx context.Context, instanceID string) ([]*models.Task, error)
}

// TaskParams carries everything the engine resolved for a new approval task.
type TaskParams struct {
	InstanceID   string
	NodeID       string
	ActivationID string
	Name         string
	Assignee     string
	Priority     int
	DueAt        *time.Time
}

// Config wires the engine's collaborators.
type Config struct {
	Instances   persistence.InstanceRepository
	Definitions persistence.DefinitionRepository
	Tasks       TaskService
	Invoker     protocol.ConnectorInvoker
	Notifier    protocol.Notifier
	Decisions   protocol.DecisionTableService
	Evaluator   *expression.Evaluator
	Publisher   eventbus.EventPublisher
	Logger      *slog.Logger
}

// Engine is the instance state machine. All mutation of an instance happens
// under its per-instance lock, and each advance call persists exactly once,
// so a crash mid-advance leaves either the pre-advance or the post-advance
// state, never something in between.
type Engine struct {
	instances   persistence.InstanceRepository
	definitions persistence.DefinitionRepository
	tasks       TaskService
	invoker     protocol.ConnectorInvoker
	notifier    protocol.Notifier
	decisions   protocol.DecisionTableService
	evaluator   *expression.Evaluator
	publisher   eventbus.EventPublisher
	locks       *lockRegistry
	logger      *slog.Logger
	tracer      trace.Tracer
}

func New(cfg Config) *Engine {
	return &Engine{
		instances:   cfg.Instances,
		definitions: cfg.Definitions,
		tasks:       cfg.Tasks,
		invoker:     cfg.Invoker,
		notifier:    cfg.Notifier,
		decisions:   cfg.Decisions,
		evaluator:   cfg.Evaluator,
		publisher:   cfg.Publisher,
		locks:       newLockRegistry(),
		logger:      cfg.Logger.With("module", "engine"),
		tracer:      otel.Tracer("flowforge/engine"),
	}
}

// StartParams describes how to start an instance. With Version nil the
// active version of the group is used.
type StartParams struct {
	GroupID     string
	Version     *int
	StartedBy   string
	TriggerData map[string]any
}

// Start creates an instance pinned to a definition version, seeds its
// variables from the declared defaults overlaid with the trigger data, and
// advances it until it suspends or terminates.
func (e *Engine) Start(ctx context.Context, params StartParams) (*models.Instance, error) {
	var (
		def *models.Definition
		err error
	)

	if params.Version == nil {
		def, err = e.definitions.GetActive(ctx, params.GroupID)
	} else {
		def, err = e.definitions.GetByVersion(ctx, params.GroupID, *params.Version)
	}

	if err != nil {
		return nil, err
	}

	start := def.StartNode()
	if start == nil {
		return nil, fmt.Errorf("definition %s version %d has no start node", def.GroupID, def.Version)
	}

	variables := def.VariableDefaults()
	for name, value := range params.TriggerData {
		variables[name] = value
	}

	now := time.Now().UTC()
	instance := &models.Instance{
		ID:                uuid.New().String(),
		DefinitionGroupID: def.GroupID,
		DefinitionVersion: def.Version,
		Status:            models.InstanceStatusRunning,
		ActiveNodes: []*models.ActiveNode{
			{ActivationID: uuid.New().String(), NodeID: start.ID, State: models.ActivationDispatchable},
		},
		Variables:   variables,
		TriggerData: params.TriggerData,
		StartedBy:   params.StartedBy,
		StartedAt:   now,
	}

	if err := e.instances.Save(ctx, instance); err != nil {
		return nil, err
	}

	e.publish(ctx, instance.ID, events.InstanceStarted{
		BaseEvent:         e.baseEvent(events.InstanceStartedEvent, instance.ID),
		DefinitionGroupID: def.GroupID,
		DefinitionVersion: def.Version,
		StartedBy:         params.StartedBy,
		TriggerData:       params.TriggerData,
	})

	e.logger.InfoContext(ctx, "Instance started",
		"instance_id", instance.ID, "group_id", def.GroupID, "version", def.Version)

	if err := e.Advance(ctx, instance.ID); err != nil {
		return nil, err
	}

	return e.instances.GetByID(ctx, instance.ID)
}

// Advance runs the instance's dispatch loop to fixed point. It is a no-op on
// terminal and paused instances and idempotent when nothing is dispatchable.
func (e *Engine) Advance(ctx context.Context, instanceID string) error {
	lock := e.locks.forInstance(instanceID)
	lock.Lock()
	defer lock.Unlock()

	return e.advance(ctx, instanceID)
}

func (e *Engine) advance(ctx context.Context, instanceID string) error {
	ctx, span := e.tracer.Start(ctx, "engine.advance",
		trace.WithAttributes(attribute.String("instance.id", instanceID)))
	defer span.End()

	instance, err := e.instances.GetByID(ctx, instanceID)
	if err != nil {
		return err
	}

	if instance.IsTerminal() || instance.Status == models.InstanceStatusPaused {
		return nil
	}

	def, err := e.definitions.GetByVersion(ctx, instance.DefinitionGroupID, instance.DefinitionVersion)
	if err != nil {
		return err
	}

	run := &advanceRun{engine: e, instance: instance, definition: def}
	run.loop(ctx)

	if err := e.instances.Save(ctx, instance); err != nil {
		return err
	}

	for _, event := range run.pending {
		e.publish(ctx, instance.ID, event)
	}

	return nil
}

// CompleteActivation resolves a suspended activation: the task manager and
// asynchronous connector callbacks feed it. Data is merged into the
// instance's variables, the outcome becomes visible to edge conditions and
// the branch is advanced. Completions arriving after the instance reached a
// terminal status are discarded.
func (e *Engine) CompleteActivation(ctx context.Context, instanceID, activationID, outcome string, data map[string]any) error {
	lock := e.locks.forInstance(instanceID)
	lock.Lock()
	defer lock.Unlock()

	instance, err := e.instances.GetByID(ctx, instanceID)
	if err != nil {
		return err
	}

	if instance.IsTerminal() {
		e.logger.InfoContext(ctx, "Discarding completion for terminal instance",
			"instance_id", instanceID, "activation_id", activationID)

		return nil
	}

	active := instance.Activation(activationID)
	if active == nil {
		return fmt.Errorf("instance %s activation %s: %w", instanceID, activationID, ErrActivationNotFound)
	}

	if len(data) > 0 {
		if instance.Variables == nil {
			instance.Variables = make(map[string]any)
		}

		for name, value := range data {
			instance.Variables[name] = value
		}
	}

	instance.Outcome = outcome
	active.State = models.ActivationDispatchable

	if err := e.refreshDueAt(ctx, instance); err != nil {
		return err
	}

	if err := e.instances.Save(ctx, instance); err != nil {
		return err
	}

	return e.advance(ctx, instanceID)
}

// Cancel terminates a running or paused instance and cascades to its open
// tasks. Cancelling a terminal instance is a no-op.
func (e *Engine) Cancel(ctx context.Context, instanceID, actor string) error {
	lock := e.locks.forInstance(instanceID)
	lock.Lock()
	defer lock.Unlock()

	instance, err := e.instances.GetByID(ctx, instanceID)
	if err != nil {
		return err
	}

	if instance.IsTerminal() {
		return nil
	}

	now := time.Now().UTC()
	instance.Status = models.InstanceStatusCancelled
	instance.CancelledBy = actor
	instance.CompletedAt = &now
	instance.ActiveNodes = nil
	instance.DueAt = nil

	if err := e.instances.Save(ctx, instance); err != nil {
		return err
	}

	cancelled, err := e.tasks.CancelForInstance(ctx, instanceID)
	if err != nil {
		return err
	}

	e.publish(ctx, instanceID, events.InstanceCancelled{
		BaseEvent:      e.baseEvent(events.InstanceCancelledEvent, instanceID),
		CancelledBy:    actor,
		CancelledTasks: cancelled,
	})

	e.logger.InfoContext(ctx, "Instance cancelled",
		"instance_id", instanceID, "actor", actor, "cancelled_tasks", cancelled)

	return nil
}

// Pause freezes advancing without closing tasks. Only running instances can
// be paused.
func (e *Engine) Pause(ctx context.Context, instanceID string) error {
	lock := e.locks.forInstance(instanceID)
	lock.Lock()
	defer lock.Unlock()

	instance, err := e.instances.GetByID(ctx, instanceID)
	if err != nil {
		return err
	}

	if instance.Status != models.InstanceStatusRunning {
		return &InstanceStateError{InstanceID: instanceID, Status: instance.Status, Action: "pause"}
	}

	instance.Status = models.InstanceStatusPaused

	if err := e.instances.Save(ctx, instance); err != nil {
		return err
	}

	e.publish(ctx, instanceID, events.InstancePaused{
		BaseEvent: e.baseEvent(events.InstancePausedEvent, instanceID),
	})

	return nil
}

// Resume merges extraInput into the variables and re-advances a paused
// instance.
func (e *Engine) Resume(ctx context.Context, instanceID string, extraInput map[string]any) error {
	lock := e.locks.forInstance(instanceID)
	lock.Lock()
	defer lock.Unlock()

	instance, err := e.instances.GetByID(ctx, instanceID)
	if err != nil {
		return err
	}

	if instance.Status != models.InstanceStatusPaused {
		return &InstanceStateError{InstanceID: instanceID, Status: instance.Status, Action: "resume"}
	}

	if len(extraInput) > 0 {
		if instance.Variables == nil {
			instance.Variables = make(map[string]any)
		}

		for name, value := range extraInput {
			instance.Variables[name] = value
		}
	}

	instance.Status = models.InstanceStatusRunning

	if err := e.instances.Save(ctx, instance); err != nil {
		return err
	}

	e.publish(ctx, instanceID, events.InstanceResumed{
		BaseEvent: e.baseEvent(events.InstanceResumedEvent, instanceID),
	})

	return e.advance(ctx, instanceID)
}

// GetInstance returns one instance by ID.
func (e *Engine) GetInstance(ctx context.Context, instanceID string) (*models.Instance, error) {
	return e.instances.GetByID(ctx, instanceID)
}

// refreshDueAt recomputes the instance deadline as the earliest due date
// across its remaining open tasks.
func (e *Engine) refreshDueAt(ctx context.Context, instance *models.Instance) error {
	open, err := e.tasks.ListOpen(ctx, instance.ID)
	if err != nil {
		return err
	}

	var earliest *time.Time

	for _, task := range open {
		if task.DueAt == nil {
			continue
		}

		if earliest == nil || task.DueAt.Before(*earliest) {
			earliest = task.DueAt
		}
	}

	instance.DueAt = earliest

	return nil
}

func (e *Engine) baseEvent(eventType events.EventType, instanceID string) events.BaseEvent {
	return events.BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		InstanceID: instanceID,
	}
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, key, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish engine event",
			"event_type", event.GetType(), "error", err)
	}
}
