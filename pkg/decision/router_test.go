package decision

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/models"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/persistence"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/persistence/memory"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/testutil"
)

func newRouter(t *testing.T, table *models.DecisionTable) *Router {
	t.Helper()

	store := memory.NewPersistence()
	require.NoError(t, store.DecisionTableRepository().Save(context.Background(), table))

	return NewRouter(store.DecisionTableRepository(), testutil.Logger())
}

func approvalRouting() *models.DecisionTable {
	return &models.DecisionTable{
		ID:     "approval-routing",
		Name:   "Approval routing",
		Inputs: []string{"amount", "region"},
		Rules: []*models.DecisionRule{
			{When: map[string]string{"amount": "value > 10000"}, Outcome: "board"},
			{When: map[string]string{"amount": "value > 500", "region": `value == "EMEA"`}, Outcome: "emea_manager"},
			{When: map[string]string{"amount": "value > 500"}, Outcome: "manager"},
			{When: map[string]string{}, Outcome: "auto"},
		},
	}
}

func TestResolveFirstMatchWins(t *testing.T) {
	router := newRouter(t, approvalRouting())
	ctx := context.Background()

	outcome, ok, err := router.Resolve(ctx, "approval-routing", map[string]any{"amount": 20000, "region": "EMEA"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "board", outcome)

	outcome, ok, err = router.Resolve(ctx, "approval-routing", map[string]any{"amount": 900, "region": "EMEA"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "emea_manager", outcome)

	outcome, ok, err = router.Resolve(ctx, "approval-routing", map[string]any{"amount": 900, "region": "APAC"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "manager", outcome)
}

func TestResolveEmptyWhenMatchesAnything(t *testing.T) {
	router := newRouter(t, approvalRouting())

	outcome, ok, err := router.Resolve(context.Background(), "approval-routing", map[string]any{"amount": 10})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "auto", outcome)
}

func TestResolveNoMatch(t *testing.T) {
	router := newRouter(t, &models.DecisionTable{
		ID: "strict",
		Rules: []*models.DecisionRule{
			{When: map[string]string{"amount": "value > 100"}, Outcome: "high"},
		},
	})

	outcome, ok, err := router.Resolve(context.Background(), "strict", map[string]any{"amount": 5})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, outcome)
}

func TestResolveUnknownTable(t *testing.T) {
	router := newRouter(t, approvalRouting())

	_, _, err := router.Resolve(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, persistence.ErrDecisionTableNotFound)
}

func TestResolveNonBooleanConditionFails(t *testing.T) {
	router := newRouter(t, &models.DecisionTable{
		ID: "broken",
		Rules: []*models.DecisionRule{
			{When: map[string]string{"amount": "value + 1"}, Outcome: "oops"},
		},
	})

	_, _, err := router.Resolve(context.Background(), "broken", map[string]any{"amount": 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected boolean")
}
