package models

import (
	"encoding/json"
	"fmt"
)

// NodeType enumerates the step kinds understood by the execution engine.
type NodeType string

const (
	NodeTypeStart    NodeType = "start"
	NodeTypeAction   NodeType = "action"
	NodeTypeDecision NodeType = "decision"
	NodeTypeApproval NodeType = "approval"
	NodeTypeEmail    NodeType = "email"
	NodeTypeEnd      NodeType = "end"
)

// Node represents a typed step in a process definition.
//
// Config holds the type-specific configuration and is decoded on demand with
// the typed accessors below. PositionX/PositionY are presentation metadata
// owned by the authoring UI; the engine never reads them.
type Node struct {
	ID        string         `json:"id"   validate:"required"`
	Type      NodeType       `json:"type" validate:"required"`
	Name      string         `json:"name" validate:"required,min=1"`
	Config    map[string]any `json:"config,omitempty"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
}

// ErrorHandling selects what happens when an action node exhausts its
// retries: stop fails the instance, continue proceeds with outputs unset.
type ErrorHandling string

const (
	ErrorHandlingStop     ErrorHandling = "stop"
	ErrorHandlingContinue ErrorHandling = "continue"
)

// RetryPolicy bounds the attempts made for a failing connector call.
type RetryPolicy struct {
	MaxAttempts    int     `json:"max_attempts"`
	InitialDelayMs int     `json:"initial_delay_ms"`
	Multiplier     float64 `json:"multiplier"`
}

// ActionConfig configures an action node: which connector operation to
// invoke and how its inputs are bound from the instance context.
type ActionConfig struct {
	Connector     string            `json:"connector"  validate:"required"`
	Operation     string            `json:"operation"  validate:"required"`
	Inputs        map[string]string `json:"inputs,omitempty"` // expression per input name
	Retry         *RetryPolicy      `json:"retry,omitempty"`
	ErrorHandling ErrorHandling     `json:"error_handling,omitempty"`
}

// ApprovalConfig configures an approval node. Assignee is an expression
// resolved against the instance context when the task is created.
type ApprovalConfig struct {
	Assignee    string `json:"assignee"     validate:"required"`
	Approvals   int    `json:"approvals"`    // approval arity, defaults to 1
	TimeoutDays int    `json:"timeout_days"` // drives the task's due date
	Priority    int    `json:"priority"`
}

// DecisionConfig configures a decision node. With a table reference the
// decision router resolves the outcome; otherwise the outgoing edge
// conditions are evaluated inline.
type DecisionConfig struct {
	Table       string            `json:"table,omitempty"`
	TableInputs map[string]string `json:"table_inputs,omitempty"` // expression per table input
}

// EmailConfig configures an email node. Sending is best-effort unless Fatal
// is set.
type EmailConfig struct {
	Template  string `json:"template"  validate:"required"`
	Recipient string `json:"recipient" validate:"required"` // expression
	Fatal     bool   `json:"fatal,omitempty"`
}

// ActionConfig decodes the node's config as an action configuration.
func (n *Node) ActionConfig() (*ActionConfig, error) {
	cfg := &ActionConfig{}
	if err := decodeConfig(n.Config, cfg); err != nil {
		return nil, fmt.Errorf("node %s: invalid action config: %w", n.ID, err)
	}

	return cfg, nil
}

// ApprovalConfig decodes the node's config as an approval configuration.
func (n *Node) ApprovalConfig() (*ApprovalConfig, error) {
	cfg := &ApprovalConfig{}
	if err := decodeConfig(n.Config, cfg); err != nil {
		return nil, fmt.Errorf("node %s: invalid approval config: %w", n.ID, err)
	}

	if cfg.Approvals <= 0 {
		cfg.Approvals = 1
	}

	return cfg, nil
}

// DecisionConfig decodes the node's config as a decision configuration.
func (n *Node) DecisionConfig() (*DecisionConfig, error) {
	cfg := &DecisionConfig{}
	if err := decodeConfig(n.Config, cfg); err != nil {
		return nil, fmt.Errorf("node %s: invalid decision config: %w", n.ID, err)
	}

	return cfg, nil
}

// EmailConfig decodes the node's config as an email configuration.
func (n *Node) EmailConfig() (*EmailConfig, error) {
	cfg := &EmailConfig{}
	if err := decodeConfig(n.Config, cfg); err != nil {
		return nil, fmt.Errorf("node %s: invalid email config: %w", n.ID, err)
	}

	return cfg, nil
}

func decodeConfig(config map[string]any, target any) error {
	raw, err := json.Marshal(config)
	if err != nil {
		return err
	}

	return json.Unmarshal(raw, target)
}
