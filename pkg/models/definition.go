// Package models defines the core domain models for process orchestration.
package models

import "time"

// DefinitionStatus represents the lifecycle state of a process definition.
type DefinitionStatus string

const (
	DefinitionStatusDraft    DefinitionStatus = "draft"    // Editable, not executable
	DefinitionStatusActive   DefinitionStatus = "active"   // Current published version, executable
	DefinitionStatusArchived DefinitionStatus = "archived" // Historical version, referenced by old instances
)

// VariableType enumerates the declared types for process variables.
type VariableType string

const (
	VariableTypeString  VariableType = "string"
	VariableTypeNumber  VariableType = "number"
	VariableTypeBoolean VariableType = "boolean"
	VariableTypeDate    VariableType = "date"
	VariableTypeArray   VariableType = "array"
	VariableTypeObject  VariableType = "object"
)

// Variable declares a named process variable and its optional default value.
type Variable struct {
	Name    string       `json:"name"    validate:"required,min=1"`
	Type    VariableType `json:"type"    validate:"required"`
	Default any          `json:"default,omitempty"`
}

// TriggerType enumerates how an instance of a definition can be started.
type TriggerType string

const (
	TriggerTypeManual   TriggerType = "manual"   // Started explicitly through the API
	TriggerTypeForm     TriggerType = "form"     // Started by a form submission payload
	TriggerTypeSchedule TriggerType = "schedule" // Started by a cron schedule
)

// Trigger describes one way a definition can be started.
type Trigger struct {
	ID     string         `json:"id"     validate:"required"`
	Type   TriggerType    `json:"type"   validate:"required"`
	Name   string         `json:"name"`
	Config map[string]any `json:"config,omitempty"`
}

// SLAConfig holds the escalation policy applied when tasks or instances
// breach their deadlines. Breach sets a flag and escalates; it never fails
// the work item itself.
type SLAConfig struct {
	// EscalateToRole names the role notified on breach.
	EscalateToRole string `json:"escalate_to_role,omitempty"`

	// NotifyTemplate is the notification template used for escalations.
	NotifyTemplate string `json:"notify_template,omitempty"`
}

// Definition represents one immutable version of a process graph.
//
// Drafts are mutable; publishing validates the graph, freezes a copy with the
// next version number and marks it active, archiving the prior active
// version. Instances pin the (GroupID, Version) pair they started against.
type Definition struct {
	ID          string           `json:"id"`
	GroupID     string           `json:"group_id"` // Stable ID linking all versions
	Version     int              `json:"version"`
	Name        string           `json:"name"        validate:"required,min=3"`
	Description string           `json:"description"`
	Status      DefinitionStatus `json:"status"      validate:"required"`
	Nodes       []*Node          `json:"nodes"`
	Edges       []*Edge          `json:"edges"`
	Triggers    []*Trigger       `json:"triggers,omitempty"`
	Variables   []*Variable      `json:"variables,omitempty"`
	SLA         *SLAConfig       `json:"sla,omitempty"`
	Owner       string           `json:"owner"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	PublishedAt *time.Time       `json:"published_at,omitempty"`
}

// NodeByID returns the node with the given ID, or nil.
func (d *Definition) NodeByID(id string) *Node {
	for _, node := range d.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// StartNode returns the single start node, or nil when the graph has none.
func (d *Definition) StartNode() *Node {
	for _, node := range d.Nodes {
		if node.Type == NodeTypeStart {
			return node
		}
	}

	return nil
}

// OutgoingEdges returns the edges leaving the given node in declaration
// order. Declaration order is load-bearing for decision nodes: the first
// edge whose condition holds is taken.
func (d *Definition) OutgoingEdges(nodeID string) []*Edge {
	var out []*Edge

	for _, edge := range d.Edges {
		if edge.Source == nodeID {
			out = append(out, edge)
		}
	}

	return out
}

// VariableDefaults returns the declared default values keyed by name.
func (d *Definition) VariableDefaults() map[string]any {
	defaults := make(map[string]any)

	for _, v := range d.Variables {
		if v.Default != nil {
			defaults[v.Name] = v.Default
		}
	}

	return defaults
}
