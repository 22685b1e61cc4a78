// Package sla watches deadlines. A breach flags the item and escalates once;
// it never fails or closes the work itself.
package sla

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/eventbus"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/events"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/models"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/persistence"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/protocol"
)

// Monitor sweeps for overdue tasks and instances.
type Monitor struct {
	instances   persistence.InstanceRepository
	tasks       persistence.TaskRepository
	definitions persistence.DefinitionRepository
	notifier    protocol.Notifier
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

func NewMonitor(
	instances persistence.InstanceRepository,
	tasks persistence.TaskRepository,
	definitions persistence.DefinitionRepository,
	notifier protocol.Notifier,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Monitor {
	return &Monitor{
		instances:   instances,
		tasks:       tasks,
		definitions: definitions,
		notifier:    notifier,
		publisher:   publisher,
		logger:      logger.With("module", "sla"),
	}
}

// Overdue is the result of one deadline scan.
type Overdue struct {
	Tasks     []*models.Task
	Instances []*models.Instance
}

// FindOverdue returns open tasks and running instances whose deadline has
// passed and whose breach was not recorded yet. Already-flagged items are
// excluded, which is what makes escalation fire once per item.
func (m *Monitor) FindOverdue(ctx context.Context, now time.Time) (*Overdue, error) {
	tasks, err := m.tasks.FindOverdue(ctx, now)
	if err != nil {
		return nil, err
	}

	instances, err := m.instances.FindOverdue(ctx, now)
	if err != nil {
		return nil, err
	}

	return &Overdue{Tasks: tasks, Instances: instances}, nil
}

// Sweep flags every newly overdue item and escalates it. Returns how many
// items were flagged.
func (m *Monitor) Sweep(ctx context.Context, now time.Time) (int, error) {
	overdue, err := m.FindOverdue(ctx, now)
	if err != nil {
		return 0, err
	}

	flagged := 0

	for _, task := range overdue.Tasks {
		task.SLABreached = true

		if err := m.tasks.Save(ctx, task); err != nil {
			return flagged, err
		}

		m.escalate(ctx, "task", task.ID, task.InstanceID, *task.DueAt)
		flagged++
	}

	for _, instance := range overdue.Instances {
		instance.SLABreached = true

		if err := m.instances.Save(ctx, instance); err != nil {
			return flagged, err
		}

		m.escalate(ctx, "instance", instance.ID, instance.ID, *instance.DueAt)
		flagged++
	}

	if flagged > 0 {
		m.logger.InfoContext(ctx, "SLA sweep flagged items", "count", flagged)
	}

	return flagged, nil
}

// escalate publishes the breach event and notifies the escalation role from
// the definition's SLA policy. Notification failures are logged, never
// propagated: the breach flag is already persisted.
func (m *Monitor) escalate(ctx context.Context, itemKind, itemID, instanceID string, dueAt time.Time) {
	role, template := m.escalationPolicy(ctx, instanceID)

	event := events.SLABreached{
		BaseEvent: events.BaseEvent{
			ID:         uuid.New().String(),
			Type:       events.SLABreachedEvent,
			Timestamp:  time.Now().UTC(),
			InstanceID: instanceID,
		},
		ItemKind: itemKind,
		ItemID:   itemID,
		DueAt:    dueAt,
		Role:     role,
	}

	if m.publisher != nil {
		if err := m.publisher.Publish(ctx, instanceID, event); err != nil {
			m.logger.ErrorContext(ctx, "Failed to publish SLA breach", "item_id", itemID, "error", err)
		}
	}

	if role == "" || m.notifier == nil {
		return
	}

	if template == "" {
		template = "sla_breach"
	}

	err := m.notifier.Send(ctx, template, role, map[string]any{
		"item_kind":   itemKind,
		"item_id":     itemID,
		"instance_id": instanceID,
		"due_at":      dueAt,
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to notify escalation role",
			"item_id", itemID, "role", role, "error", err)
	}
}

// escalationPolicy resolves the SLA policy of the definition version the
// instance runs against.
func (m *Monitor) escalationPolicy(ctx context.Context, instanceID string) (role, template string) {
	instance, err := m.instances.GetByID(ctx, instanceID)
	if err != nil {
		return "", ""
	}

	def, err := m.definitions.GetByVersion(ctx, instance.DefinitionGroupID, instance.DefinitionVersion)
	if err != nil || def.SLA == nil {
		return "", ""
	}

	return def.SLA.EscalateToRole, def.SLA.NotifyTemplate
}

// Schedule runs Sweep on a fixed interval until the returned stop function
// is called.
func (m *Monitor) Schedule(ctx context.Context, interval time.Duration) (stop func(), err error) {
	scheduler := cron.New()

	_, err = scheduler.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		if _, err := m.Sweep(ctx, time.Now().UTC()); err != nil {
			m.logger.ErrorContext(ctx, "SLA sweep failed", "error", err)
		}
	})
	if err != nil {
		return nil, err
	}

	scheduler.Start()

	return func() { scheduler.Stop() }, nil
}
