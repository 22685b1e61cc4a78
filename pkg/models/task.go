package models

import "time"

// TaskStatus represents the state machine of a human-approval task:
// pending -> claimed -> completed, with cancellation possible from any open
// state.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusClaimed   TaskStatus = "claimed"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// TaskComment is a free-form note recorded against a task.
type TaskComment struct {
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Task is a human work item created when an instance enters an approval
// node. It suspends the originating branch until resolved. Outcome is a
// free-form string consumed by outgoing edge conditions as `outcome`.
type Task struct {
	ID           string         `json:"id"`
	InstanceID   string         `json:"instance_id"   validate:"required"`
	NodeID       string         `json:"node_id"       validate:"required"`
	ActivationID string         `json:"activation_id" validate:"required"`
	Name         string         `json:"name"`
	Assignee     string         `json:"assignee"`
	Status       TaskStatus     `json:"status"`
	Priority     int            `json:"priority"`
	Outcome      string         `json:"outcome,omitempty"`
	DueAt        *time.Time     `json:"due_at,omitempty"`
	SLABreached  bool           `json:"sla_breached,omitempty"`
	ClaimedBy    string         `json:"claimed_by,omitempty"`
	CompletedBy  string         `json:"completed_by,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Comments     []*TaskComment `json:"comments,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// IsOpen reports whether the task can still be acted on.
func (t *Task) IsOpen() bool {
	return t.Status == TaskStatusPending || t.Status == TaskStatusClaimed
}
