package models

import "time"

// InstanceStatus represents the lifecycle state of a running instance.
type InstanceStatus string

const (
	InstanceStatusRunning   InstanceStatus = "running"
	InstanceStatusCompleted InstanceStatus = "completed"
	InstanceStatusFailed    InstanceStatus = "failed"
	InstanceStatusCancelled InstanceStatus = "cancelled"
	InstanceStatusPaused    InstanceStatus = "paused"
)

// ActivationState tells the advance loop what an active-node entry is
// waiting for. Only dispatchable entries are processed; the others are
// suspended until a task or connector callback resolves them.
type ActivationState string

const (
	ActivationDispatchable      ActivationState = "dispatchable"
	ActivationAwaitingTask      ActivationState = "awaiting_task"
	ActivationAwaitingConnector ActivationState = "awaiting_connector"
)

// ActiveNode is one in-flight branch of an instance. Concurrent branches are
// separate entries; two edges converging on the same node produce two
// independent entries rather than a merged one.
type ActiveNode struct {
	ActivationID string          `json:"activation_id"`
	NodeID       string          `json:"node_id"`
	State        ActivationState `json:"state"`

	// TaskID links the approval task created for this activation, when the
	// node kind produces one. A dispatchable approval activation with a
	// TaskID has been resolved and either opens the next approval round or
	// routes onward.
	TaskID string `json:"task_id,omitempty"`

	// ApprovalsLeft counts the completions still required before an approval
	// activation routes onward. Zero means the configured arity is
	// satisfied.
	ApprovalsLeft int `json:"approvals_left,omitempty"`
}

// Instance is one execution of a definition version. It is mutated only by
// the engine and the task manager, always under the per-instance lock, and
// becomes immutable once its status is terminal.
type Instance struct {
	ID                string         `json:"id"`
	DefinitionGroupID string         `json:"definition_group_id" validate:"required"`
	DefinitionVersion int            `json:"definition_version"  validate:"min=1"`
	Status            InstanceStatus `json:"status"`
	ActiveNodes       []*ActiveNode  `json:"active_nodes,omitempty"`
	Variables         map[string]any `json:"variables,omitempty"`
	TriggerData       map[string]any `json:"trigger_data,omitempty"`
	Outcome           string         `json:"outcome,omitempty"` // latest task/action outcome
	StartedBy         string         `json:"started_by"`
	StartedAt         time.Time      `json:"started_at"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	DueAt             *time.Time     `json:"due_at,omitempty"` // earliest unmet SLA across open tasks
	SLABreached       bool           `json:"sla_breached,omitempty"`
	FailureReason     string         `json:"failure_reason,omitempty"`
	FailedNodeID      string         `json:"failed_node_id,omitempty"`
	CancelledBy       string         `json:"cancelled_by,omitempty"`
}

// IsTerminal reports whether the instance reached a final status.
func (i *Instance) IsTerminal() bool {
	switch i.Status {
	case InstanceStatusCompleted, InstanceStatusFailed, InstanceStatusCancelled:
		return true
	default:
		return false
	}
}

// Activation returns the active-node entry with the given activation ID.
func (i *Instance) Activation(activationID string) *ActiveNode {
	for _, active := range i.ActiveNodes {
		if active.ActivationID == activationID {
			return active
		}
	}

	return nil
}
