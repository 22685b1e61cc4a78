// Package testutil provides shared helpers for package tests: a silent
// logger, an event publisher that records instead of delivering, and graph
// builders for common definition shapes.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/eventbus"
	"github.com/Nirvasoft/FlowForge-sub004/pkg/models"
)

// Logger returns a logger that discards all output.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// RecordingPublisher captures published events for assertions.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

func (p *RecordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

// Events returns a copy of everything published so far.
func (p *RecordingPublisher) Events() []eventbus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]eventbus.Event, len(p.events))
	copy(out, p.events)

	return out
}

// EventsOfType returns the recorded events matching the given type.
func (p *RecordingPublisher) EventsOfType(eventType string) []eventbus.Event {
	var out []eventbus.Event

	for _, event := range p.Events() {
		if string(event.GetType()) == eventType {
			out = append(out, event)
		}
	}

	return out
}

// Draft returns an empty draft definition for authoring tests.
func Draft(name string) *models.Definition {
	now := time.Now().UTC()

	return &models.Definition{
		ID:        uuid.New().String(),
		GroupID:   uuid.New().String(),
		Version:   0,
		Name:      name,
		Status:    models.DefinitionStatusDraft,
		Owner:     "tester",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// LinearDraft returns a draft with a start -> action -> end graph wired to
// the log connector.
func LinearDraft(name string) *models.Definition {
	def := Draft(name)
	def.Nodes = []*models.Node{
		{ID: "start", Type: models.NodeTypeStart, Name: "Start"},
		{
			ID: "act", Type: models.NodeTypeAction, Name: "Log it",
			Config: map[string]any{
				"connector": "log",
				"operation": "write",
				"inputs":    map[string]any{"message": `concat("hello ", variables.who)`},
			},
		},
		{ID: "end", Type: models.NodeTypeEnd, Name: "End"},
	}
	def.Edges = []*models.Edge{
		{ID: "e1", Source: "start", Target: "act"},
		{ID: "e2", Source: "act", Target: "end"},
	}
	def.Variables = []*models.Variable{
		{Name: "who", Type: models.VariableTypeString, Default: "world"},
	}

	return def
}

// ApprovalDraft returns a draft with a start -> approval -> end graph whose
// approval routes on `outcome`.
func ApprovalDraft(name string) *models.Definition {
	def := Draft(name)
	def.Nodes = []*models.Node{
		{ID: "start", Type: models.NodeTypeStart, Name: "Start"},
		{
			ID: "approve", Type: models.NodeTypeApproval, Name: "Manager approval",
			Config: map[string]any{
				"assignee":     `variables.manager`,
				"timeout_days": 3,
			},
		},
		{ID: "done", Type: models.NodeTypeEnd, Name: "Approved"},
		{ID: "rejected", Type: models.NodeTypeEnd, Name: "Rejected"},
	}
	def.Edges = []*models.Edge{
		{ID: "e1", Source: "start", Target: "approve"},
		{ID: "e2", Source: "approve", Target: "done", Condition: `outcome == "approved"`},
		{ID: "e3", Source: "approve", Target: "rejected", Condition: `outcome == "rejected"`},
	}
	def.Variables = []*models.Variable{
		{Name: "manager", Type: models.VariableTypeString, Default: "alice"},
	}

	return def
}
