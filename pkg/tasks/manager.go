// Package tasks manages human approval tasks: the work items created when
// an instance enters an approval node. Completing a task feeds its outcome
// back into the engine, which resumes the suspended branch.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/engine"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/eventbus"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/events"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/models"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/persistence"
)

// ActivationCompleter resumes the branch a completed task was suspending.
// The engine implements it; the indirection exists because the engine and
// the manager are constructed before each other's wiring is complete.
type ActivationCompleter interface {
	CompleteActivation(ctx context.Context, instanceID, activationID, outcome string, data map[string]any) error
}

// Manager implements the task state machine and the engine.TaskService
// contract.
type Manager struct {
	repository persistence.TaskRepository
	completer  ActivationCompleter
	publisher  eventbus.EventPublisher
	logger     *slog.Logger
}

func NewManager(repository persistence.TaskRepository, publisher eventbus.EventPublisher, logger *slog.Logger) *Manager {
	return &Manager{
		repository: repository,
		publisher:  publisher,
		logger:     logger.With("module", "tasks"),
	}
}

// SetCompleter wires the engine in after both sides are constructed.
func (m *Manager) SetCompleter(completer ActivationCompleter) {
	m.completer = completer
}

// CreateTask creates a pending task for an approval activation.
func (m *Manager) CreateTask(ctx context.Context, params engine.TaskParams) (*models.Task, error) {
	task := &models.Task{
		ID:           uuid.New().String(),
		InstanceID:   params.InstanceID,
		NodeID:       params.NodeID,
		ActivationID: params.ActivationID,
		Name:         params.Name,
		Assignee:     params.Assignee,
		Status:       models.TaskStatusPending,
		Priority:     params.Priority,
		DueAt:        params.DueAt,
		CreatedAt:    time.Now().UTC(),
	}

	if err := m.repository.Save(ctx, task); err != nil {
		return nil, err
	}

	m.publish(ctx, task.InstanceID, events.TaskCreated{
		BaseEvent: m.baseEvent(events.TaskCreatedEvent, task.InstanceID),
		TaskID:    task.ID,
		NodeID:    task.NodeID,
		Assignee:  task.Assignee,
		DueAt:     task.DueAt,
	})

	m.logger.InfoContext(ctx, "Task created",
		"task_id", task.ID, "instance_id", task.InstanceID, "assignee", task.Assignee)

	return task, nil
}

// Claim moves a pending task to claimed. The assignee is unchanged; the
// claimant is whoever will actually work it.
func (m *Manager) Claim(ctx context.Context, taskID, user string) (*models.Task, error) {
	task, err := m.repository.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if task.Status != models.TaskStatusPending {
		return nil, &InvalidStateError{TaskID: taskID, Status: task.Status, Action: "claim"}
	}

	task.Status = models.TaskStatusClaimed
	task.ClaimedBy = user

	if err := m.repository.Save(ctx, task); err != nil {
		return nil, err
	}

	m.publish(ctx, task.InstanceID, events.TaskClaimed{
		BaseEvent: m.baseEvent(events.TaskClaimedEvent, task.InstanceID),
		TaskID:    task.ID,
		ClaimedBy: user,
	})

	return task, nil
}

// Release puts a claimed task back to pending. Only the claimant can
// release.
func (m *Manager) Release(ctx context.Context, taskID, user string) (*models.Task, error) {
	task, err := m.repository.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if task.Status != models.TaskStatusClaimed {
		return nil, &InvalidStateError{TaskID: taskID, Status: task.Status, Action: "release"}
	}

	if task.ClaimedBy != user {
		return nil, &NotClaimantError{TaskID: taskID, ClaimedBy: task.ClaimedBy, User: user}
	}

	task.Status = models.TaskStatusPending
	task.ClaimedBy = ""

	if err := m.repository.Save(ctx, task); err != nil {
		return nil, err
	}

	m.publish(ctx, task.InstanceID, events.TaskReleased{
		BaseEvent:  m.baseEvent(events.TaskReleasedEvent, task.InstanceID),
		TaskID:     task.ID,
		ReleasedBy: user,
	})

	return task, nil
}

// CompleteParams carries the resolution of a task.
type CompleteParams struct {
	CompletedBy string
	Outcome     string
	Data        map[string]any
	Comment     string
}

// Complete resolves a pending or claimed task and feeds the outcome back to
// the engine, resuming the suspended branch.
func (m *Manager) Complete(ctx context.Context, taskID string, params CompleteParams) (*models.Task, error) {
	task, err := m.repository.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if !task.IsOpen() {
		return nil, &InvalidStateError{TaskID: taskID, Status: task.Status, Action: "complete"}
	}

	now := time.Now().UTC()
	task.Status = models.TaskStatusCompleted
	task.Outcome = params.Outcome
	task.CompletedBy = params.CompletedBy
	task.CompletedAt = &now

	if params.Comment != "" {
		task.Comments = append(task.Comments, &models.TaskComment{
			Author:    params.CompletedBy,
			Text:      params.Comment,
			CreatedAt: now,
		})
	}

	if err := m.repository.Save(ctx, task); err != nil {
		return nil, err
	}

	m.publish(ctx, task.InstanceID, events.TaskCompleted{
		BaseEvent:   m.baseEvent(events.TaskCompletedEvent, task.InstanceID),
		TaskID:      task.ID,
		CompletedBy: params.CompletedBy,
		Outcome:     params.Outcome,
	})

	m.logger.InfoContext(ctx, "Task completed",
		"task_id", task.ID, "instance_id", task.InstanceID, "outcome", params.Outcome)

	if m.completer == nil {
		return task, nil
	}

	if err := m.completer.CompleteActivation(ctx, task.InstanceID, task.ActivationID, params.Outcome, params.Data); err != nil {
		return nil, fmt.Errorf("resuming instance %s: %w", task.InstanceID, err)
	}

	return task, nil
}

// Delegate reassigns an open task and resets it to pending.
func (m *Manager) Delegate(ctx context.Context, taskID, delegatedBy, newAssignee string) (*models.Task, error) {
	task, err := m.repository.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if !task.IsOpen() {
		return nil, &InvalidStateError{TaskID: taskID, Status: task.Status, Action: "delegate"}
	}

	task.Assignee = newAssignee
	task.Status = models.TaskStatusPending
	task.ClaimedBy = ""

	if err := m.repository.Save(ctx, task); err != nil {
		return nil, err
	}

	m.publish(ctx, task.InstanceID, events.TaskDelegated{
		BaseEvent:   m.baseEvent(events.TaskDelegatedEvent, task.InstanceID),
		TaskID:      task.ID,
		DelegatedBy: delegatedBy,
		NewAssignee: newAssignee,
	})

	return task, nil
}

// AddComment records a note against an open task.
func (m *Manager) AddComment(ctx context.Context, taskID, author, text string) (*models.Task, error) {
	task, err := m.repository.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if !task.IsOpen() {
		return nil, &InvalidStateError{TaskID: taskID, Status: task.Status, Action: "comment on"}
	}

	task.Comments = append(task.Comments, &models.TaskComment{
		Author:    author,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	})

	return task, m.repository.Save(ctx, task)
}

// CancelForInstance cancels every open task of an instance and returns how
// many were cancelled. Used by the engine's cancellation cascade.
func (m *Manager) CancelForInstance(ctx context.Context, instanceID string) (int, error) {
	open, err := m.repository.ListOpenByInstance(ctx, instanceID)
	if err != nil {
		return 0, err
	}

	for _, task := range open {
		task.Status = models.TaskStatusCancelled

		if err := m.repository.Save(ctx, task); err != nil {
			return 0, err
		}

		m.publish(ctx, task.InstanceID, events.TaskCancelled{
			BaseEvent: m.baseEvent(events.TaskCancelledEvent, task.InstanceID),
			TaskID:    task.ID,
		})
	}

	return len(open), nil
}

// ListOpen returns the open tasks of an instance.
func (m *Manager) ListOpen(ctx context.Context, instanceID string) ([]*models.Task, error) {
	return m.repository.ListOpenByInstance(ctx, instanceID)
}

// List returns tasks matching the options.
func (m *Manager) List(ctx context.Context, opts persistence.ListTasksOptions) ([]*models.Task, error) {
	return m.repository.List(ctx, opts)
}

// Get returns one task by ID.
func (m *Manager) Get(ctx context.Context, taskID string) (*models.Task, error) {
	return m.repository.GetByID(ctx, taskID)
}

func (m *Manager) baseEvent(eventType events.EventType, instanceID string) events.BaseEvent {
	return events.BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		InstanceID: instanceID,
	}
}

func (m *Manager) publish(ctx context.Context, key string, event eventbus.Event) {
	if m.publisher == nil {
		return
	}

	if err := m.publisher.Publish(ctx, key, event); err != nil {
		m.logger.ErrorContext(ctx, "Failed to publish task event",
			"event_type", event.GetType(), "error", err)
	}
}
