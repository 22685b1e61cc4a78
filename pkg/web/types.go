// Package web provides HTTP request and response types for the process API.
package web

import "github.com/Nirvasoft/FlowForge-sub004/pkg/models"

// CreateDefinitionRequest represents the request body for creating a draft.
type CreateDefinitionRequest struct {
	Name        string `json:"name"        validate:"required,min=3"`
	Description string `json:"description"`
	Owner       string `json:"owner"       validate:"required"`
}

// UpdateDefinitionRequest represents a partial update of draft metadata.
type UpdateDefinitionRequest struct {
	Name        *string            `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string            `json:"description,omitempty"`
	Variables   []*models.Variable `json:"variables,omitempty"`
	SLA         *models.SLAConfig  `json:"sla,omitempty"`
}

// NodeRequest represents the request body for adding or replacing a node.
type NodeRequest struct {
	ID        string         `json:"id"`
	Type      string         `json:"type" validate:"required,oneof=start action decision approval email end"`
	Name      string         `json:"name" validate:"required,min=1"`
	Config    map[string]any `json:"config"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
}

// EdgeRequest represents the request body for adding an edge.
type EdgeRequest struct {
	ID        string `json:"id"`
	Source    string `json:"source" validate:"required"`
	Target    string `json:"target" validate:"required"`
	Condition string `json:"condition"`
	Label     string `json:"label"`
}

// TriggerRequest represents the request body for adding a trigger.
type TriggerRequest struct {
	ID     string         `json:"id"`
	Type   string         `json:"type" validate:"required,oneof=manual form schedule"`
	Name   string         `json:"name"`
	Config map[string]any `json:"config"`
}

// StartInstanceRequest represents the request body for starting an instance.
type StartInstanceRequest struct {
	GroupID     string         `json:"group_id" validate:"required"`
	Version     *int           `json:"version,omitempty"`
	StartedBy   string         `json:"started_by" validate:"required"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

// CancelInstanceRequest carries the cancelling actor.
type CancelInstanceRequest struct {
	Actor string `json:"actor" validate:"required"`
}

// ResumeInstanceRequest carries optional extra input merged on resume.
type ResumeInstanceRequest struct {
	Input map[string]any `json:"input,omitempty"`
}

// ClaimTaskRequest identifies the claimant.
type ClaimTaskRequest struct {
	User string `json:"user" validate:"required"`
}

// ReleaseTaskRequest identifies the releasing claimant.
type ReleaseTaskRequest struct {
	User string `json:"user" validate:"required"`
}

// CompleteTaskRequest resolves a task.
type CompleteTaskRequest struct {
	CompletedBy string         `json:"completed_by" validate:"required"`
	Outcome     string         `json:"outcome"      validate:"required"`
	Data        map[string]any `json:"data,omitempty"`
	Comment     string         `json:"comment,omitempty"`
}

// DelegateTaskRequest reassigns a task.
type DelegateTaskRequest struct {
	DelegatedBy string `json:"delegated_by" validate:"required"`
	NewAssignee string `json:"new_assignee" validate:"required"`
}

// CommentRequest adds a note to a task.
type CommentRequest struct {
	Author string `json:"author" validate:"required"`
	Text   string `json:"text"   validate:"required"`
}
