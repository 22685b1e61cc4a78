package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/engine"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/events"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/models"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/persistence"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/persistence/memory"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/testutil"
)

func newManager(t *testing.T) (*Manager, *testutil.RecordingPublisher) {
	t.Helper()

	store := memory.NewPersistence()
	publisher := testutil.NewRecordingPublisher()

	return NewManager(store.TaskRepository(), publisher, testutil.Logger()), publisher
}

func createTask(t *testing.T, manager *Manager) *models.Task {
	t.Helper()

	due := time.Now().UTC().Add(72 * time.Hour)
	task, err := manager.CreateTask(context.Background(), engine.TaskParams{
		InstanceID:   "inst-1",
		NodeID:       "approve",
		ActivationID: "act-1",
		Name:         "Manager approval",
		Assignee:     "alice",
		Priority:     2,
		DueAt:        &due,
	})
	require.NoError(t, err)

	return task
}

func TestCreateTaskStartsPending(t *testing.T) {
	manager, publisher := newManager(t)

	task := createTask(t, manager)

	assert.Equal(t, models.TaskStatusPending, task.Status)
	assert.Equal(t, "alice", task.Assignee)
	assert.Len(t, publisher.EventsOfType(string(events.TaskCreatedEvent)), 1)
}

func TestClaimThenRelease(t *testing.T) {
	manager, _ := newManager(t)
	ctx := context.Background()

	task := createTask(t, manager)

	claimed, err := manager.Claim(ctx, task.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusClaimed, claimed.Status)
	assert.Equal(t, "bob", claimed.ClaimedBy)
	assert.Equal(t, "alice", claimed.Assignee)

	// Double claim is rejected.
	_, err = manager.Claim(ctx, task.ID, "carol")
	assert.True(t, IsInvalidState(err))

	// Only the claimant can release.
	_, err = manager.Release(ctx, task.ID, "carol")
	require.Error(t, err)
	assert.True(t, IsNotClaimant(err))
	assert.False(t, IsInvalidState(err))

	released, err := manager.Release(ctx, task.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, released.Status)
	assert.Empty(t, released.ClaimedBy)
}

func TestCompleteRecordsOutcomeAndComment(t *testing.T) {
	manager, publisher := newManager(t)
	ctx := context.Background()

	task := createTask(t, manager)

	completed, err := manager.Complete(ctx, task.ID, CompleteParams{
		CompletedBy: "alice",
		Outcome:     "rejected",
		Comment:     "missing receipts",
	})
	require.NoError(t, err)

	assert.Equal(t, models.TaskStatusCompleted, completed.Status)
	assert.Equal(t, "rejected", completed.Outcome)
	assert.Equal(t, "alice", completed.CompletedBy)
	require.NotNil(t, completed.CompletedAt)
	require.Len(t, completed.Comments, 1)
	assert.Equal(t, "missing receipts", completed.Comments[0].Text)

	assert.Len(t, publisher.EventsOfType(string(events.TaskCompletedEvent)), 1)

	// A completed task cannot be acted on again.
	_, err = manager.Complete(ctx, task.ID, CompleteParams{Outcome: "approved"})
	assert.True(t, IsInvalidState(err))
	_, err = manager.Claim(ctx, task.ID, "bob")
	assert.True(t, IsInvalidState(err))
}

func TestDelegateResetsToPending(t *testing.T) {
	manager, publisher := newManager(t)
	ctx := context.Background()

	task := createTask(t, manager)
	_, err := manager.Claim(ctx, task.ID, "bob")
	require.NoError(t, err)

	delegated, err := manager.Delegate(ctx, task.ID, "bob", "carol")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, delegated.Status)
	assert.Equal(t, "carol", delegated.Assignee)
	assert.Empty(t, delegated.ClaimedBy)

	assert.Len(t, publisher.EventsOfType(string(events.TaskDelegatedEvent)), 1)
}

func TestCancelForInstanceSkipsClosedTasks(t *testing.T) {
	manager, _ := newManager(t)
	ctx := context.Background()

	first := createTask(t, manager)
	second := createTask(t, manager)

	_, err := manager.Complete(ctx, first.ID, CompleteParams{CompletedBy: "alice", Outcome: "approved"})
	require.NoError(t, err)

	cancelled, err := manager.CancelForInstance(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled)

	reloaded, err := manager.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCancelled, reloaded.Status)

	done, err := manager.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, done.Status)
}

func TestListFilters(t *testing.T) {
	manager, _ := newManager(t)
	ctx := context.Background()

	task := createTask(t, manager)
	pending := models.TaskStatusPending

	byAssignee, err := manager.List(ctx, persistence.ListTasksOptions{Assignee: "alice", Status: &pending})
	require.NoError(t, err)
	require.Len(t, byAssignee, 1)
	assert.Equal(t, task.ID, byAssignee[0].ID)

	none, err := manager.List(ctx, persistence.ListTasksOptions{Assignee: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAddComment(t *testing.T) {
	manager, _ := newManager(t)
	ctx := context.Background()

	task := createTask(t, manager)

	updated, err := manager.AddComment(ctx, task.ID, "bob", "waiting on finance")
	require.NoError(t, err)
	require.Len(t, updated.Comments, 1)
	assert.Equal(t, "bob", updated.Comments[0].Author)
}
