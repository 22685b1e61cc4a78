package sla

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/events"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/models"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/persistence/memory"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/testutil"
)

type recordingNotifier struct {
	mu    sync.Mutex
	sends []string // recipient per send
}

func (n *recordingNotifier) Send(_ context.Context, _ string, recipient string, _ map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.sends = append(n.sends, recipient)

	return nil
}

func newMonitor(t *testing.T) (*Monitor, *memory.Persistence, *recordingNotifier, *testutil.RecordingPublisher) {
	t.Helper()

	store := memory.NewPersistence()
	notifier := &recordingNotifier{}
	publisher := testutil.NewRecordingPublisher()

	monitor := NewMonitor(
		store.InstanceRepository(),
		store.TaskRepository(),
		store.DefinitionRepository(),
		notifier,
		publisher,
		testutil.Logger(),
	)

	return monitor, store, notifier, publisher
}

func seedOverdueTask(t *testing.T, store *memory.Persistence) *models.Task {
	t.Helper()
	ctx := context.Background()

	def := testutil.ApprovalDraft("With SLA")
	def.Status = models.DefinitionStatusActive
	def.Version = 1
	def.SLA = &models.SLAConfig{EscalateToRole: "ops-lead", NotifyTemplate: "escalation"}
	require.NoError(t, store.DefinitionRepository().Save(ctx, def))

	due := time.Now().UTC().Add(-2 * time.Hour)
	instance := &models.Instance{
		ID:                "inst-1",
		DefinitionGroupID: def.GroupID,
		DefinitionVersion: 1,
		Status:            models.InstanceStatusRunning,
		StartedAt:         time.Now().UTC().Add(-72 * time.Hour),
	}
	require.NoError(t, store.InstanceRepository().Save(ctx, instance))

	task := &models.Task{
		ID:           "task-1",
		InstanceID:   "inst-1",
		NodeID:       "approve",
		ActivationID: "act-1",
		Assignee:     "alice",
		Status:       models.TaskStatusPending,
		DueAt:        &due,
		CreatedAt:    time.Now().UTC().Add(-72 * time.Hour),
	}
	require.NoError(t, store.TaskRepository().Save(ctx, task))

	return task
}

func TestFindOverdueSurfacesPastDueOpenTasks(t *testing.T) {
	monitor, store, _, _ := newMonitor(t)
	seedOverdueTask(t, store)

	overdue, err := monitor.FindOverdue(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, overdue.Tasks, 1)
	assert.Equal(t, "task-1", overdue.Tasks[0].ID)
}

func TestSweepEscalatesExactlyOnceAndKeepsStatus(t *testing.T) {
	monitor, store, notifier, publisher := newMonitor(t)
	seedOverdueTask(t, store)
	ctx := context.Background()

	flagged, err := monitor.Sweep(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, flagged)

	// Breach flags, status untouched.
	task, err := store.TaskRepository().GetByID(ctx, "task-1")
	require.NoError(t, err)
	assert.True(t, task.SLABreached)
	assert.Equal(t, models.TaskStatusPending, task.Status)

	breaches := publisher.EventsOfType(string(events.SLABreachedEvent))
	require.Len(t, breaches, 1)
	breach, ok := breaches[0].(events.SLABreached)
	require.True(t, ok)
	assert.Equal(t, "task", breach.ItemKind)
	assert.Equal(t, "ops-lead", breach.Role)

	require.Len(t, notifier.sends, 1)
	assert.Equal(t, "ops-lead", notifier.sends[0])

	// A second sweep finds nothing new.
	flagged, err = monitor.Sweep(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, flagged)
	assert.Len(t, notifier.sends, 1)
}

func TestSweepFlagsOverdueInstances(t *testing.T) {
	monitor, store, _, publisher := newMonitor(t)
	ctx := context.Background()

	due := time.Now().UTC().Add(-time.Hour)
	instance := &models.Instance{
		ID:                "inst-9",
		DefinitionGroupID: "grp",
		DefinitionVersion: 1,
		Status:            models.InstanceStatusRunning,
		StartedAt:         time.Now().UTC().Add(-48 * time.Hour),
		DueAt:             &due,
	}
	require.NoError(t, store.InstanceRepository().Save(ctx, instance))

	flagged, err := monitor.Sweep(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, flagged)

	reloaded, err := store.InstanceRepository().GetByID(ctx, "inst-9")
	require.NoError(t, err)
	assert.True(t, reloaded.SLABreached)
	assert.Equal(t, models.InstanceStatusRunning, reloaded.Status)

	require.Len(t, publisher.EventsOfType(string(events.SLABreachedEvent)), 1)
}

func TestSweepIgnoresFutureDeadlines(t *testing.T) {
	monitor, store, _, _ := newMonitor(t)
	ctx := context.Background()

	due := time.Now().UTC().Add(24 * time.Hour)
	task := &models.Task{
		ID:         "task-future",
		InstanceID: "inst-1",
		Status:     models.TaskStatusPending,
		DueAt:      &due,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, store.TaskRepository().Save(ctx, task))

	flagged, err := monitor.Sweep(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, flagged)
}
