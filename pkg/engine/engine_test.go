package engine_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logconnector "github.com/Nirvasoft/FlowForge-sub004/pkg/connectors/log"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/decision"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/engine"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/events"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/expression"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/models"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/notify"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/persistence/memory"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/protocol"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/registry"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/tasks"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/testutil"
)

// scriptedInvoker fails a configured number of times before succeeding.
type scriptedInvoker struct {
	mu       sync.Mutex
	failures int
	calls    int
	outputs  map[string]any
}

func (s *scriptedInvoker) Execute(_ context.Context, _, _ string, _ map[string]any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.calls <= s.failures {
		return nil, fmt.Errorf("simulated connector failure %d", s.calls)
	}

	return s.outputs, nil
}

type env struct {
	store     *memory.Persistence
	engine    *engine.Engine
	manager   *tasks.Manager
	publisher *testutil.RecordingPublisher
}

func newEnv(t *testing.T, invoker protocol.ConnectorInvoker) *env {
	t.Helper()

	store := memory.NewPersistence()
	publisher := testutil.NewRecordingPublisher()

	if invoker == nil {
		reg := registry.NewRegistry(testutil.Logger())
		reg.RegisterConnector(logconnector.NewFactory())
		invoker = reg
	}

	manager := tasks.NewManager(store.TaskRepository(), publisher, testutil.Logger())

	eng := engine.New(engine.Config{
		Instances:   store.InstanceRepository(),
		Definitions: store.DefinitionRepository(),
		Tasks:       manager,
		Invoker:     invoker,
		Notifier:    notify.NewLogNotifier(testutil.Logger()),
		Decisions:   decision.NewRouter(store.DecisionTableRepository(), testutil.Logger()),
		Evaluator:   expression.New(),
		Publisher:   publisher,
		Logger:      testutil.Logger(),
	})
	manager.SetCompleter(eng)

	return &env{store: store, engine: eng, manager: manager, publisher: publisher}
}

// activate stores the definition as the active version 1 of its group.
func (e *env) activate(t *testing.T, def *models.Definition) {
	t.Helper()

	def.Status = models.DefinitionStatusActive
	def.Version = 1
	require.NoError(t, e.store.DefinitionRepository().Save(context.Background(), def))
}

func (e *env) start(t *testing.T, groupID string, trigger map[string]any) *models.Instance {
	t.Helper()

	instance, err := e.engine.Start(context.Background(), engine.StartParams{
		GroupID:     groupID,
		StartedBy:   "tester",
		TriggerData: trigger,
	})
	require.NoError(t, err)

	return instance
}

func (e *env) pendingTasks(t *testing.T, instanceID string) []*models.Task {
	t.Helper()

	open, err := e.manager.ListOpen(context.Background(), instanceID)
	require.NoError(t, err)

	return open
}

func TestLinearFlowRunsToCompletion(t *testing.T) {
	env := newEnv(t, nil)
	def := testutil.LinearDraft("Linear")
	env.activate(t, def)

	instance := env.start(t, def.GroupID, nil)

	assert.Equal(t, models.InstanceStatusCompleted, instance.Status)
	assert.Empty(t, instance.ActiveNodes)
	require.NotNil(t, instance.CompletedAt)
	assert.Len(t, env.publisher.EventsOfType(string(events.InstanceCompletedEvent)), 1)
}

func TestApprovalSuspendsAndOutcomeRoutes(t *testing.T) {
	// Scenario: completing the approval task with "approved" drives the
	// instance to COMPLETED through the outcome-conditioned edge.
	env := newEnv(t, nil)
	def := testutil.ApprovalDraft("Approval")
	env.activate(t, def)

	instance := env.start(t, def.GroupID, nil)
	assert.Equal(t, models.InstanceStatusRunning, instance.Status)
	require.Len(t, instance.ActiveNodes, 1)
	assert.Equal(t, models.ActivationAwaitingTask, instance.ActiveNodes[0].State)

	open := env.pendingTasks(t, instance.ID)
	require.Len(t, open, 1)
	assert.Equal(t, "alice", open[0].Assignee)
	require.NotNil(t, open[0].DueAt)

	_, err := env.manager.Complete(context.Background(), open[0].ID, tasks.CompleteParams{
		CompletedBy: "alice",
		Outcome:     "approved",
	})
	require.NoError(t, err)

	final, err := env.engine.GetInstance(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCompleted, final.Status)
	assert.Equal(t, "approved", final.Outcome)
	assert.Nil(t, final.DueAt)
}

func TestDecisionRoutesHighAmountToApproval(t *testing.T) {
	// Scenario: amount 3444.88 takes the approval branch, not auto-approve.
	env := newEnv(t, nil)
	def := testutil.Draft("Expense")
	def.Nodes = []*models.Node{
		{ID: "start", Type: models.NodeTypeStart, Name: "Start"},
		{ID: "route", Type: models.NodeTypeDecision, Name: "Route by amount"},
		{
			ID: "approve", Type: models.NodeTypeApproval, Name: "Manager approval",
			Config: map[string]any{"assignee": `"bob"`},
		},
		{ID: "auto", Type: models.NodeTypeEnd, Name: "Auto approved"},
		{ID: "done", Type: models.NodeTypeEnd, Name: "Done"},
	}
	def.Edges = []*models.Edge{
		{ID: "e1", Source: "start", Target: "route"},
		{ID: "e2", Source: "route", Target: "approve", Condition: "variables.amount > 500"},
		{ID: "e3", Source: "route", Target: "auto"},
		{ID: "e4", Source: "approve", Target: "done"},
	}
	env.activate(t, def)

	instance := env.start(t, def.GroupID, map[string]any{"amount": 3444.88})

	assert.Equal(t, models.InstanceStatusRunning, instance.Status)
	open := env.pendingTasks(t, instance.ID)
	require.Len(t, open, 1)
	assert.Equal(t, "approve", open[0].NodeID)

	// Low amount takes the fallback edge and auto-completes.
	low := env.start(t, def.GroupID, map[string]any{"amount": 120.0})
	assert.Equal(t, models.InstanceStatusCompleted, low.Status)
	assert.Empty(t, env.pendingTasks(t, low.ID))
}

func TestParallelApprovalsJoinByTermination(t *testing.T) {
	// Scenario: two branches forked from start; the instance completes only
	// after both approvals resolve.
	env := newEnv(t, nil)
	def := testutil.Draft("Parallel")
	def.Nodes = []*models.Node{
		{ID: "start", Type: models.NodeTypeStart, Name: "Start"},
		{ID: "a1", Type: models.NodeTypeApproval, Name: "First", Config: map[string]any{"assignee": `"alice"`}},
		{ID: "a2", Type: models.NodeTypeApproval, Name: "Second", Config: map[string]any{"assignee": `"bob"`}},
		{ID: "end1", Type: models.NodeTypeEnd, Name: "End one"},
		{ID: "end2", Type: models.NodeTypeEnd, Name: "End two"},
	}
	def.Edges = []*models.Edge{
		{ID: "e1", Source: "start", Target: "a1"},
		{ID: "e2", Source: "start", Target: "a2"},
		{ID: "e3", Source: "a1", Target: "end1"},
		{ID: "e4", Source: "a2", Target: "end2"},
	}
	env.activate(t, def)

	instance := env.start(t, def.GroupID, nil)
	open := env.pendingTasks(t, instance.ID)
	require.Len(t, open, 2)

	_, err := env.manager.Complete(context.Background(), open[0].ID, tasks.CompleteParams{
		CompletedBy: open[0].Assignee, Outcome: "approved",
	})
	require.NoError(t, err)

	mid, err := env.engine.GetInstance(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusRunning, mid.Status)
	require.Len(t, mid.ActiveNodes, 1)

	_, err = env.manager.Complete(context.Background(), open[1].ID, tasks.CompleteParams{
		CompletedBy: open[1].Assignee, Outcome: "approved",
	})
	require.NoError(t, err)

	final, err := env.engine.GetInstance(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCompleted, final.Status)
}

func TestDecisionWithoutMatchFailsInstance(t *testing.T) {
	env := newEnv(t, nil)
	def := testutil.Draft("Dead end")
	def.Nodes = []*models.Node{
		{ID: "start", Type: models.NodeTypeStart, Name: "Start"},
		{ID: "route", Type: models.NodeTypeDecision, Name: "Route"},
		{ID: "done", Type: models.NodeTypeEnd, Name: "Done"},
	}
	def.Edges = []*models.Edge{
		{ID: "e1", Source: "start", Target: "route"},
		{ID: "e2", Source: "route", Target: "done", Condition: "variables.amount > 500"},
	}
	env.activate(t, def)

	instance := env.start(t, def.GroupID, map[string]any{"amount": 10})

	assert.Equal(t, models.InstanceStatusFailed, instance.Status)
	assert.Equal(t, "route", instance.FailedNodeID)
	assert.Contains(t, instance.FailureReason, "no outgoing edge matched")
	assert.Len(t, env.publisher.EventsOfType(string(events.InstanceFailedEvent)), 1)
}

func TestDecisionTableOutcomeRoutesEdges(t *testing.T) {
	env := newEnv(t, nil)

	table := &models.DecisionTable{
		ID: "routing",
		Rules: []*models.DecisionRule{
			{When: map[string]string{"amount": "value > 1000"}, Outcome: "manager"},
			{When: map[string]string{}, Outcome: "auto"},
		},
	}
	require.NoError(t, env.store.DecisionTableRepository().Save(context.Background(), table))

	def := testutil.Draft("Tabled")
	def.Nodes = []*models.Node{
		{ID: "start", Type: models.NodeTypeStart, Name: "Start"},
		{
			ID: "route", Type: models.NodeTypeDecision, Name: "Route",
			Config: map[string]any{
				"table":        "routing",
				"table_inputs": map[string]any{"amount": "variables.amount"},
			},
		},
		{ID: "approve", Type: models.NodeTypeApproval, Name: "Approve", Config: map[string]any{"assignee": `"carol"`}},
		{ID: "auto", Type: models.NodeTypeEnd, Name: "Auto"},
		{ID: "done", Type: models.NodeTypeEnd, Name: "Done"},
	}
	def.Edges = []*models.Edge{
		{ID: "e1", Source: "start", Target: "route"},
		{ID: "e2", Source: "route", Target: "approve", Condition: `outcome == "manager"`},
		{ID: "e3", Source: "route", Target: "auto", Condition: `outcome == "auto"`},
		{ID: "e4", Source: "approve", Target: "done"},
	}
	env.activate(t, def)

	high := env.start(t, def.GroupID, map[string]any{"amount": 5000})
	assert.Equal(t, models.InstanceStatusRunning, high.Status)
	assert.Len(t, env.pendingTasks(t, high.ID), 1)

	low := env.start(t, def.GroupID, map[string]any{"amount": 50})
	assert.Equal(t, models.InstanceStatusCompleted, low.Status)
}

func TestConnectorRetriesThenSucceeds(t *testing.T) {
	invoker := &scriptedInvoker{failures: 2, outputs: map[string]any{"ticket": "T-1"}}
	env := newEnv(t, invoker)

	def := testutil.Draft("Retry")
	def.Nodes = []*models.Node{
		{ID: "start", Type: models.NodeTypeStart, Name: "Start"},
		{
			ID: "act", Type: models.NodeTypeAction, Name: "Create ticket",
			Config: map[string]any{
				"connector": "ticketing",
				"operation": "create",
				"retry":     map[string]any{"max_attempts": 3, "initial_delay_ms": 1, "multiplier": 1.5},
			},
		},
		{ID: "end", Type: models.NodeTypeEnd, Name: "End"},
	}
	def.Edges = []*models.Edge{
		{ID: "e1", Source: "start", Target: "act"},
		{ID: "e2", Source: "act", Target: "end"},
	}
	env.activate(t, def)

	instance := env.start(t, def.GroupID, nil)

	assert.Equal(t, models.InstanceStatusCompleted, instance.Status)
	assert.Equal(t, 3, invoker.calls)
	assert.Equal(t, "T-1", instance.Variables["ticket"])
}

func TestConnectorExhaustionFailsInstanceByDefault(t *testing.T) {
	invoker := &scriptedInvoker{failures: 10}
	env := newEnv(t, invoker)

	def := testutil.Draft("Stop policy")
	def.Nodes = []*models.Node{
		{ID: "start", Type: models.NodeTypeStart, Name: "Start"},
		{
			ID: "act", Type: models.NodeTypeAction, Name: "Flaky call",
			Config: map[string]any{
				"connector": "ticketing",
				"operation": "create",
				"retry":     map[string]any{"max_attempts": 2, "initial_delay_ms": 1},
			},
		},
		{ID: "end", Type: models.NodeTypeEnd, Name: "End"},
	}
	def.Edges = []*models.Edge{
		{ID: "e1", Source: "start", Target: "act"},
		{ID: "e2", Source: "act", Target: "end"},
	}
	env.activate(t, def)

	instance := env.start(t, def.GroupID, nil)

	assert.Equal(t, models.InstanceStatusFailed, instance.Status)
	assert.Equal(t, "act", instance.FailedNodeID)
	assert.Equal(t, 2, invoker.calls)
}

func TestConnectorExhaustionContinuePolicyProceeds(t *testing.T) {
	invoker := &scriptedInvoker{failures: 10}
	env := newEnv(t, invoker)

	def := testutil.Draft("Continue policy")
	def.Nodes = []*models.Node{
		{ID: "start", Type: models.NodeTypeStart, Name: "Start"},
		{
			ID: "act", Type: models.NodeTypeAction, Name: "Best effort call",
			Config: map[string]any{
				"connector":      "ticketing",
				"operation":      "create",
				"error_handling": "continue",
			},
		},
		{ID: "end", Type: models.NodeTypeEnd, Name: "End"},
	}
	def.Edges = []*models.Edge{
		{ID: "e1", Source: "start", Target: "act"},
		{ID: "e2", Source: "act", Target: "end"},
	}
	env.activate(t, def)

	instance := env.start(t, def.GroupID, nil)

	assert.Equal(t, models.InstanceStatusCompleted, instance.Status)
	assert.NotContains(t, instance.Variables, "ticket")
	assert.Len(t, env.publisher.EventsOfType(string(events.NodeFailedEvent)), 1)
}

func TestCancelCascadesToOpenTasks(t *testing.T) {
	env := newEnv(t, nil)
	def := testutil.ApprovalDraft("Cancel me")
	env.activate(t, def)

	instance := env.start(t, def.GroupID, nil)
	open := env.pendingTasks(t, instance.ID)
	require.Len(t, open, 1)

	require.NoError(t, env.engine.Cancel(context.Background(), instance.ID, "admin"))

	final, err := env.engine.GetInstance(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCancelled, final.Status)
	assert.Equal(t, "admin", final.CancelledBy)
	assert.Empty(t, final.ActiveNodes)

	task, err := env.manager.Get(context.Background(), open[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCancelled, task.Status)

	// Cancelling again is a no-op.
	require.NoError(t, env.engine.Cancel(context.Background(), instance.ID, "admin"))

	// Completing the cancelled task is rejected without touching the instance.
	_, err = env.manager.Complete(context.Background(), task.ID, tasks.CompleteParams{Outcome: "approved"})
	assert.True(t, tasks.IsInvalidState(err))
}

func TestPauseBlocksAdvanceUntilResume(t *testing.T) {
	env := newEnv(t, nil)
	def := testutil.ApprovalDraft("Pause me")
	env.activate(t, def)

	instance := env.start(t, def.GroupID, nil)
	require.NoError(t, env.engine.Pause(context.Background(), instance.ID))

	open := env.pendingTasks(t, instance.ID)
	require.Len(t, open, 1)

	// Completion while paused records the outcome but does not advance.
	_, err := env.manager.Complete(context.Background(), open[0].ID, tasks.CompleteParams{
		CompletedBy: "alice", Outcome: "approved",
	})
	require.NoError(t, err)

	paused, err := env.engine.GetInstance(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusPaused, paused.Status)
	require.Len(t, paused.ActiveNodes, 1)
	assert.Equal(t, models.ActivationDispatchable, paused.ActiveNodes[0].State)

	require.NoError(t, env.engine.Resume(context.Background(), instance.ID, nil))

	final, err := env.engine.GetInstance(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCompleted, final.Status)
}

func TestAdvanceIsIdempotentAtFixedPoint(t *testing.T) {
	env := newEnv(t, nil)
	def := testutil.ApprovalDraft("Steady")
	env.activate(t, def)

	instance := env.start(t, def.GroupID, nil)

	require.NoError(t, env.engine.Advance(context.Background(), instance.ID))
	require.NoError(t, env.engine.Advance(context.Background(), instance.ID))

	again, err := env.engine.GetInstance(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusRunning, again.Status)
	assert.Len(t, env.pendingTasks(t, instance.ID), 1)
}

func TestCompletionAfterTerminalIsDiscarded(t *testing.T) {
	env := newEnv(t, nil)
	def := testutil.ApprovalDraft("Late callback")
	env.activate(t, def)

	instance := env.start(t, def.GroupID, nil)
	activationID := instance.ActiveNodes[0].ActivationID

	require.NoError(t, env.engine.Cancel(context.Background(), instance.ID, "admin"))

	err := env.engine.CompleteActivation(context.Background(), instance.ID, activationID, "approved", nil)
	require.NoError(t, err)

	final, err := env.engine.GetInstance(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCancelled, final.Status)
}

func TestApprovalArityRequiresEachCompletion(t *testing.T) {
	env := newEnv(t, nil)
	def := testutil.ApprovalDraft("Dual approval")
	def.Nodes[1].Config["approvals"] = 2
	env.activate(t, def)

	instance := env.start(t, def.GroupID, nil)
	require.Equal(t, models.InstanceStatusRunning, instance.Status)

	first := env.pendingTasks(t, instance.ID)
	require.Len(t, first, 1)

	_, err := env.manager.Complete(context.Background(), first[0].ID, tasks.CompleteParams{
		CompletedBy: "alice", Outcome: "approved",
	})
	require.NoError(t, err)

	// One completion opens the second approval round instead of routing.
	mid, err := env.engine.GetInstance(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusRunning, mid.Status)

	second := env.pendingTasks(t, instance.ID)
	require.Len(t, second, 1)
	assert.NotEqual(t, first[0].ID, second[0].ID)

	_, err = env.manager.Complete(context.Background(), second[0].ID, tasks.CompleteParams{
		CompletedBy: "alice", Outcome: "approved",
	})
	require.NoError(t, err)

	final, err := env.engine.GetInstance(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCompleted, final.Status)
}

func TestCyclicActionGraphFailsInsteadOfSpinning(t *testing.T) {
	env := newEnv(t, nil)
	def := testutil.Draft("Cycle")

	action := func(id string) *models.Node {
		return &models.Node{
			ID: id, Type: models.NodeTypeAction, Name: id,
			Config: map[string]any{
				"connector": "log",
				"operation": "write",
				"inputs":    map[string]any{"message": `"ping"`},
			},
		}
	}

	def.Nodes = []*models.Node{
		{ID: "start", Type: models.NodeTypeStart, Name: "Start"},
		action("a"),
		action("b"),
	}
	def.Edges = []*models.Edge{
		{ID: "e1", Source: "start", Target: "a"},
		{ID: "e2", Source: "a", Target: "b"},
		{ID: "e3", Source: "b", Target: "a"},
	}
	env.activate(t, def)

	instance := env.start(t, def.GroupID, nil)

	assert.Equal(t, models.InstanceStatusFailed, instance.Status)
	assert.Contains(t, instance.FailureReason, "fixed point")
	assert.Empty(t, instance.ActiveNodes)
}

func TestPauseAndResumeRejectWrongStatus(t *testing.T) {
	env := newEnv(t, nil)
	def := testutil.ApprovalDraft("Lifecycle")
	env.activate(t, def)

	instance := env.start(t, def.GroupID, nil)

	// Resuming a running instance is rejected with a typed error.
	err := env.engine.Resume(context.Background(), instance.ID, nil)
	assert.True(t, engine.IsInstanceState(err))

	require.NoError(t, env.engine.Pause(context.Background(), instance.ID))

	err = env.engine.Pause(context.Background(), instance.ID)
	assert.True(t, engine.IsInstanceState(err))

	paused, err := env.engine.GetInstance(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusPaused, paused.Status)
}

func TestStartSeedsDefaultsThenTriggerData(t *testing.T) {
	env := newEnv(t, nil)
	def := testutil.ApprovalDraft("Seeding")
	env.activate(t, def)

	instance := env.start(t, def.GroupID, map[string]any{"manager": "dave", "amount": 42.0})

	open := env.pendingTasks(t, instance.ID)
	require.Len(t, open, 1)
	assert.Equal(t, "dave", open[0].Assignee)

	loaded, err := env.engine.GetInstance(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, 42.0, loaded.Variables["amount"])
}
