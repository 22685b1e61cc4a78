// Package definition implements the versioned process definition store:
// draft authoring, publish-time validation and the version lifecycle.
package definition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/eventbus"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/events"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/expression"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/models"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/persistence"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/registry"
)

// Store manages process definitions through their draft, active and archived
// lifecycle. Mutations only apply to drafts; publishing freezes an immutable
// copy under the next version number.
type Store struct {
	repository persistence.DefinitionRepository
	evaluator  *expression.Evaluator
	registry   *registry.Registry
	publisher  eventbus.EventPublisher
	validate   *validator.Validate
	logger     *slog.Logger
}

func NewStore(
	repository persistence.DefinitionRepository,
	evaluator *expression.Evaluator,
	reg *registry.Registry,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Store {
	return &Store{
		repository: repository,
		evaluator:  evaluator,
		registry:   reg,
		publisher:  publisher,
		validate:   validator.New(),
		logger:     logger.With("module", "definition"),
	}
}

// CreateParams carries the fields for a new draft.
type CreateParams struct {
	Name        string `validate:"required,min=3"`
	Description string
	Owner       string `validate:"required"`
}

// Create makes a new draft definition in a fresh version group.
func (s *Store) Create(ctx context.Context, params CreateParams) (*models.Definition, error) {
	if err := s.validate.Struct(params); err != nil {
		return nil, fmt.Errorf("invalid definition parameters: %w", err)
	}

	now := time.Now().UTC()
	def := &models.Definition{
		ID:          uuid.New().String(),
		GroupID:     uuid.New().String(),
		Version:     0,
		Name:        params.Name,
		Description: params.Description,
		Status:      models.DefinitionStatusDraft,
		Owner:       params.Owner,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repository.Save(ctx, def); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Definition draft created", "definition_id", def.ID, "group_id", def.GroupID)

	return def, nil
}

// UpdateParams carries the mutable metadata of a draft.
type UpdateParams struct {
	Name        *string
	Description *string
	Variables   []*models.Variable
	SLA         *models.SLAConfig
}

// Update changes draft metadata. Graph mutations go through the node, edge
// and trigger operations.
func (s *Store) Update(ctx context.Context, id string, params UpdateParams) (*models.Definition, error) {
	def, err := s.draft(ctx, id)
	if err != nil {
		return nil, err
	}

	if params.Name != nil {
		def.Name = *params.Name
	}

	if params.Description != nil {
		def.Description = *params.Description
	}

	if params.Variables != nil {
		def.Variables = params.Variables
	}

	if params.SLA != nil {
		def.SLA = params.SLA
	}

	if err := s.validate.Struct(def); err != nil {
		return nil, fmt.Errorf("invalid definition: %w", err)
	}

	return def, s.save(ctx, def)
}

// Delete removes a draft. Published versions are retained for running
// instances and cannot be deleted.
func (s *Store) Delete(ctx context.Context, id string) error {
	def, err := s.repository.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if def.Status != models.DefinitionStatusDraft {
		return fmt.Errorf("delete definition %s: %w", id, ErrNotDraft)
	}

	return s.repository.Delete(ctx, id)
}

// AddNode appends a node to a draft graph. The node ID is generated when
// absent.
func (s *Store) AddNode(ctx context.Context, definitionID string, node *models.Node) (*models.Definition, error) {
	def, err := s.draft(ctx, definitionID)
	if err != nil {
		return nil, err
	}

	if node.ID == "" {
		node.ID = uuid.New().String()
	}

	if def.NodeByID(node.ID) != nil {
		return nil, fmt.Errorf("node %s already exists in definition %s", node.ID, definitionID)
	}

	def.Nodes = append(def.Nodes, node)

	return def, s.save(ctx, def)
}

// UpdateNode replaces the node with the same ID in a draft graph.
func (s *Store) UpdateNode(ctx context.Context, definitionID string, node *models.Node) (*models.Definition, error) {
	def, err := s.draft(ctx, definitionID)
	if err != nil {
		return nil, err
	}

	for i, existing := range def.Nodes {
		if existing.ID == node.ID {
			def.Nodes[i] = node

			return def, s.save(ctx, def)
		}
	}

	return nil, fmt.Errorf("update node %s: %w", node.ID, ErrNodeNotFound)
}

// DeleteNode removes a node and every edge touching it from a draft graph.
func (s *Store) DeleteNode(ctx context.Context, definitionID, nodeID string) (*models.Definition, error) {
	def, err := s.draft(ctx, definitionID)
	if err != nil {
		return nil, err
	}

	if def.NodeByID(nodeID) == nil {
		return nil, fmt.Errorf("delete node %s: %w", nodeID, ErrNodeNotFound)
	}

	nodes := def.Nodes[:0]

	for _, node := range def.Nodes {
		if node.ID != nodeID {
			nodes = append(nodes, node)
		}
	}

	def.Nodes = nodes

	edges := def.Edges[:0]

	for _, edge := range def.Edges {
		if edge.Source != nodeID && edge.Target != nodeID {
			edges = append(edges, edge)
		}
	}

	def.Edges = edges

	return def, s.save(ctx, def)
}

// AddEdge appends an edge to a draft graph. Both endpoints must exist.
func (s *Store) AddEdge(ctx context.Context, definitionID string, edge *models.Edge) (*models.Definition, error) {
	def, err := s.draft(ctx, definitionID)
	if err != nil {
		return nil, err
	}

	if edge.ID == "" {
		edge.ID = uuid.New().String()
	}

	if def.NodeByID(edge.Source) == nil {
		return nil, fmt.Errorf("edge source %s: %w", edge.Source, ErrNodeNotFound)
	}

	if def.NodeByID(edge.Target) == nil {
		return nil, fmt.Errorf("edge target %s: %w", edge.Target, ErrNodeNotFound)
	}

	def.Edges = append(def.Edges, edge)

	return def, s.save(ctx, def)
}

// DeleteEdge removes an edge from a draft graph.
func (s *Store) DeleteEdge(ctx context.Context, definitionID, edgeID string) (*models.Definition, error) {
	def, err := s.draft(ctx, definitionID)
	if err != nil {
		return nil, err
	}

	for i, edge := range def.Edges {
		if edge.ID == edgeID {
			def.Edges = append(def.Edges[:i], def.Edges[i+1:]...)

			return def, s.save(ctx, def)
		}
	}

	return nil, fmt.Errorf("delete edge %s: %w", edgeID, ErrEdgeNotFound)
}

// AddTrigger appends a trigger to a draft.
func (s *Store) AddTrigger(ctx context.Context, definitionID string, trigger *models.Trigger) (*models.Definition, error) {
	def, err := s.draft(ctx, definitionID)
	if err != nil {
		return nil, err
	}

	if trigger.ID == "" {
		trigger.ID = uuid.New().String()
	}

	def.Triggers = append(def.Triggers, trigger)

	return def, s.save(ctx, def)
}

// DeleteTrigger removes a trigger from a draft.
func (s *Store) DeleteTrigger(ctx context.Context, definitionID, triggerID string) (*models.Definition, error) {
	def, err := s.draft(ctx, definitionID)
	if err != nil {
		return nil, err
	}

	for i, trigger := range def.Triggers {
		if trigger.ID == triggerID {
			def.Triggers = append(def.Triggers[:i], def.Triggers[i+1:]...)

			return def, s.save(ctx, def)
		}
	}

	return nil, fmt.Errorf("delete trigger %s: %w", triggerID, ErrTriggerNotFound)
}

// Publish validates a draft, freezes a copy as the next version of its group
// and archives the previously active version. The draft itself stays
// editable. All violations are reported together so the author can fix the
// graph in one pass.
func (s *Store) Publish(ctx context.Context, id string) (*models.Definition, error) {
	def, err := s.draft(ctx, id)
	if err != nil {
		return nil, err
	}

	if verr := s.validateForPublishing(def); verr != nil {
		return nil, verr
	}

	version, err := s.nextVersion(ctx, def.GroupID)
	if err != nil {
		return nil, err
	}

	previous, err := s.repository.GetActive(ctx, def.GroupID)
	if err != nil && !errors.Is(err, persistence.ErrActiveDefinitionNotFound) {
		return nil, err
	}

	now := time.Now().UTC()

	published := *def
	published.ID = uuid.New().String()
	published.Version = version
	published.Status = models.DefinitionStatusActive
	published.UpdatedAt = now
	published.PublishedAt = &now

	if err := s.repository.Save(ctx, &published); err != nil {
		return nil, err
	}

	if previous != nil {
		previous.Status = models.DefinitionStatusArchived
		previous.UpdatedAt = now

		if err := s.repository.Save(ctx, previous); err != nil {
			return nil, err
		}
	}

	s.publishEvent(ctx, published.GroupID, events.DefinitionPublished{
		BaseEvent: events.BaseEvent{
			ID:        uuid.New().String(),
			Type:      events.DefinitionPublishedEvent,
			Timestamp: now,
		},
		DefinitionID: published.ID,
		GroupID:      published.GroupID,
		Version:      published.Version,
	})

	s.logger.InfoContext(ctx, "Definition published",
		"definition_id", published.ID, "group_id", published.GroupID, "version", published.Version)

	return &published, nil
}

// Unpublish archives the active version of a group without publishing a
// replacement. New instances can no longer start; running instances keep
// their pinned version.
func (s *Store) Unpublish(ctx context.Context, groupID string) (*models.Definition, error) {
	active, err := s.repository.GetActive(ctx, groupID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	active.Status = models.DefinitionStatusArchived
	active.UpdatedAt = now

	if err := s.repository.Save(ctx, active); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, groupID, events.DefinitionUnpublished{
		BaseEvent: events.BaseEvent{
			ID:        uuid.New().String(),
			Type:      events.DefinitionUnpublishedEvent,
			Timestamp: now,
		},
		DefinitionID: active.ID,
		GroupID:      groupID,
	})

	s.logger.InfoContext(ctx, "Definition unpublished", "definition_id", active.ID, "group_id", groupID)

	return active, nil
}

// Archive retires a single definition version. Archiving the active version
// is equivalent to unpublishing it; archiving a draft abandons it while
// keeping it readable.
func (s *Store) Archive(ctx context.Context, id string) (*models.Definition, error) {
	def, err := s.repository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if def.Status == models.DefinitionStatusArchived {
		return def, nil
	}

	wasActive := def.Status == models.DefinitionStatusActive

	def.Status = models.DefinitionStatusArchived
	def.UpdatedAt = time.Now().UTC()

	if err := s.repository.Save(ctx, def); err != nil {
		return nil, err
	}

	if wasActive {
		s.publishEvent(ctx, def.GroupID, events.DefinitionUnpublished{
			BaseEvent: events.BaseEvent{
				ID:        uuid.New().String(),
				Type:      events.DefinitionUnpublishedEvent,
				Timestamp: def.UpdatedAt,
			},
			DefinitionID: def.ID,
			GroupID:      def.GroupID,
		})
	}

	return def, nil
}

// GetByID returns a single definition version by its own ID.
func (s *Store) GetByID(ctx context.Context, id string) (*models.Definition, error) {
	return s.repository.GetByID(ctx, id)
}

// Get resolves a definition for a group. With version nil it returns the
// active version; otherwise the exact version, archived or not.
func (s *Store) Get(ctx context.Context, groupID string, version *int) (*models.Definition, error) {
	if version == nil {
		return s.repository.GetActive(ctx, groupID)
	}

	return s.repository.GetByVersion(ctx, groupID, *version)
}

// List returns definitions matching the options, newest first.
func (s *Store) List(ctx context.Context, opts persistence.ListDefinitionsOptions) ([]*models.Definition, error) {
	return s.repository.List(ctx, opts)
}

// draft loads a definition and rejects anything that is not a draft.
func (s *Store) draft(ctx context.Context, id string) (*models.Definition, error) {
	def, err := s.repository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if def.Status != models.DefinitionStatusDraft {
		return nil, fmt.Errorf("definition %s: %w", id, ErrNotDraft)
	}

	return def, nil
}

func (s *Store) save(ctx context.Context, def *models.Definition) error {
	def.UpdatedAt = time.Now().UTC()

	return s.repository.Save(ctx, def)
}

// nextVersion returns one past the highest version ever published in the
// group, so versions keep growing even after archival.
func (s *Store) nextVersion(ctx context.Context, groupID string) (int, error) {
	versions, err := s.repository.List(ctx, persistence.ListDefinitionsOptions{GroupID: groupID})
	if err != nil {
		return 0, err
	}

	highest := 0

	for _, def := range versions {
		if def.Version > highest {
			highest = def.Version
		}
	}

	return highest + 1, nil
}

func (s *Store) publishEvent(ctx context.Context, key string, event eventbus.Event) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.Publish(ctx, key, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish definition event", "event_type", event.GetType(), "error", err)
	}
}
