package definition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/connectors/log"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/events"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/expression"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/models"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/persistence"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/persistence/memory"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/registry"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/testutil"
)

func newTestStore(t *testing.T) (*Store, *memory.Persistence, *testutil.RecordingPublisher) {
	t.Helper()

	store := memory.NewPersistence()
	reg := registry.NewRegistry(testutil.Logger())
	reg.RegisterConnector(log.NewFactory())

	publisher := testutil.NewRecordingPublisher()

	return NewStore(store.DefinitionRepository(), expression.New(), reg, publisher, testutil.Logger()), store, publisher
}

func seedDraft(t *testing.T, store *memory.Persistence, def *models.Definition) {
	t.Helper()
	require.NoError(t, store.DefinitionRepository().Save(context.Background(), def))
}

func TestCreateStartsAsDraft(t *testing.T) {
	svc, _, _ := newTestStore(t)

	def, err := svc.Create(context.Background(), CreateParams{Name: "Expense approval", Owner: "alice"})
	require.NoError(t, err)

	assert.Equal(t, models.DefinitionStatusDraft, def.Status)
	assert.Equal(t, 0, def.Version)
	assert.NotEmpty(t, def.GroupID)
}

func TestCreateRejectsShortName(t *testing.T) {
	svc, _, _ := newTestStore(t)

	_, err := svc.Create(context.Background(), CreateParams{Name: "ab", Owner: "alice"})
	assert.Error(t, err)
}

func TestMutationsRequireDraft(t *testing.T) {
	svc, store, _ := newTestStore(t)

	def := testutil.LinearDraft("Published flow")
	def.Status = models.DefinitionStatusActive
	def.Version = 1
	seedDraft(t, store, def)

	_, err := svc.AddNode(context.Background(), def.ID, &models.Node{
		Type: models.NodeTypeEnd, Name: "Extra end",
	})
	assert.ErrorIs(t, err, ErrNotDraft)

	err = svc.Delete(context.Background(), def.ID)
	assert.ErrorIs(t, err, ErrNotDraft)
}

func TestDeleteNodeRemovesTouchingEdges(t *testing.T) {
	svc, store, _ := newTestStore(t)

	def := testutil.LinearDraft("Trim me")
	seedDraft(t, store, def)

	updated, err := svc.DeleteNode(context.Background(), def.ID, "act")
	require.NoError(t, err)

	assert.Len(t, updated.Nodes, 2)
	assert.Empty(t, updated.Edges)
}

func TestAddEdgeRejectsUnknownEndpoints(t *testing.T) {
	svc, store, _ := newTestStore(t)

	def := testutil.LinearDraft("Edges")
	seedDraft(t, store, def)

	_, err := svc.AddEdge(context.Background(), def.ID, &models.Edge{Source: "start", Target: "nowhere"})
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestPublishFreezesNextVersionAndArchivesPrior(t *testing.T) {
	svc, store, publisher := newTestStore(t)
	ctx := context.Background()

	def := testutil.LinearDraft("Release me")
	seedDraft(t, store, def)

	first, err := svc.Publish(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, models.DefinitionStatusActive, first.Status)
	assert.NotEqual(t, def.ID, first.ID)
	require.NotNil(t, first.PublishedAt)

	// The draft stays editable and republishable.
	draft, err := svc.GetByID(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DefinitionStatusDraft, draft.Status)

	second, err := svc.Publish(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)

	archived, err := svc.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DefinitionStatusArchived, archived.Status)

	active, err := svc.Get(ctx, def.GroupID, nil)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	assert.Len(t, publisher.EventsOfType(string(events.DefinitionPublishedEvent)), 2)
}

func TestPublishCollectsAllViolations(t *testing.T) {
	svc, store, _ := newTestStore(t)

	def := testutil.Draft("Broken flow")
	def.Nodes = []*models.Node{
		{ID: "start", Type: models.NodeTypeStart, Name: "Start"},
		{ID: "start2", Type: models.NodeTypeStart, Name: "Second start"},
		{
			ID: "act", Type: models.NodeTypeAction, Name: "No connector",
			Config: map[string]any{"operation": "write"},
		},
		{ID: "island", Type: models.NodeTypeEnd, Name: "Unreachable"},
	}
	def.Edges = []*models.Edge{
		{ID: "e1", Source: "start", Target: "act", Condition: "variables.x >"},
		{ID: "e2", Source: "act", Target: "missing"},
	}
	seedDraft(t, store, def)

	_, err := svc.Publish(context.Background(), def.ID)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	joined := verr.Error()
	assert.Contains(t, joined, "exactly one start node")
	assert.Contains(t, joined, "no connector reference")
	assert.Contains(t, joined, "invalid condition")
	assert.Contains(t, joined, "non-existent target node")
	assert.Contains(t, joined, "not reachable")
	assert.GreaterOrEqual(t, len(verr.Violations), 5)
}

func TestPublishRejectsUnregisteredConnector(t *testing.T) {
	svc, store, _ := newTestStore(t)

	def := testutil.LinearDraft("Bad connector")
	def.Nodes[1].Config["connector"] = "carrier_pigeon"
	seedDraft(t, store, def)

	_, err := svc.Publish(context.Background(), def.ID)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "not registered")
}

func TestPublishRejectsUnknownIdentifier(t *testing.T) {
	svc, store, _ := newTestStore(t)

	def := testutil.ApprovalDraft("Strict grammar")
	def.Edges[1].Condition = `workflow.outcome == "approved"`
	seedDraft(t, store, def)

	_, err := svc.Publish(context.Background(), def.ID)
	assert.True(t, IsValidationError(err))
}

func TestUnpublishArchivesActive(t *testing.T) {
	svc, store, publisher := newTestStore(t)
	ctx := context.Background()

	def := testutil.ApprovalDraft("Retire me")
	seedDraft(t, store, def)

	published, err := svc.Publish(ctx, def.ID)
	require.NoError(t, err)

	archived, err := svc.Unpublish(ctx, def.GroupID)
	require.NoError(t, err)
	assert.Equal(t, published.ID, archived.ID)
	assert.Equal(t, models.DefinitionStatusArchived, archived.Status)

	_, err = svc.Get(ctx, def.GroupID, nil)
	assert.ErrorIs(t, err, persistence.ErrActiveDefinitionNotFound)

	assert.Len(t, publisher.EventsOfType(string(events.DefinitionUnpublishedEvent)), 1)
}

func TestGetPinnedVersionSurvivesUnpublish(t *testing.T) {
	svc, store, _ := newTestStore(t)
	ctx := context.Background()

	def := testutil.LinearDraft("Pinned")
	seedDraft(t, store, def)

	published, err := svc.Publish(ctx, def.ID)
	require.NoError(t, err)

	_, err = svc.Unpublish(ctx, def.GroupID)
	require.NoError(t, err)

	version := published.Version
	pinned, err := svc.Get(ctx, def.GroupID, &version)
	require.NoError(t, err)
	assert.Equal(t, published.ID, pinned.ID)
}
