// Package events defines event types and structures for process lifecycle
// notifications.
package events

import (
	"time"

	"github.com/Nirvasoft/FlowForge-sub004/pkg/models"
)

type EventType string

// Topic is the bus topic all engine events are published on.
const Topic = "flowforge.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Instance lifecycle events.
	InstanceStartedEvent   EventType = "instance.started"
	InstanceCompletedEvent EventType = "instance.completed"
	InstanceFailedEvent    EventType = "instance.failed"
	InstanceCancelledEvent EventType = "instance.cancelled"
	InstancePausedEvent    EventType = "instance.paused"
	InstanceResumedEvent   EventType = "instance.resumed"

	// Node execution events.
	NodeDispatchedEvent EventType = "node.dispatched"
	NodeFailedEvent     EventType = "node.failed"

	// Task lifecycle events.
	TaskCreatedEvent   EventType = "task.created"
	TaskClaimedEvent   EventType = "task.claimed"
	TaskReleasedEvent  EventType = "task.released"
	TaskCompletedEvent EventType = "task.completed"
	TaskDelegatedEvent EventType = "task.delegated"
	TaskCancelledEvent EventType = "task.cancelled"

	// SLA events.
	SLABreachedEvent EventType = "sla.breached"

	// Definition authoring events.
	DefinitionPublishedEvent   EventType = "definition.published"
	DefinitionUnpublishedEvent EventType = "definition.unpublished"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	InstanceID string         `json:"instance_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type InstanceStarted struct {
	BaseEvent

	DefinitionGroupID string         `json:"definition_group_id"`
	DefinitionVersion int            `json:"definition_version"`
	StartedBy         string         `json:"started_by"`
	TriggerData       map[string]any `json:"trigger_data,omitempty"`
}

func (e InstanceStarted) GetType() EventType {
	return InstanceStartedEvent
}

type InstanceCompleted struct {
	BaseEvent

	Duration time.Duration `json:"duration"`
}

func (e InstanceCompleted) GetType() EventType {
	return InstanceCompletedEvent
}

type InstanceFailed struct {
	BaseEvent

	Reason string `json:"reason"`
	NodeID string `json:"node_id"`
}

func (e InstanceFailed) GetType() EventType {
	return InstanceFailedEvent
}

type InstanceCancelled struct {
	BaseEvent

	CancelledBy    string `json:"cancelled_by"`
	CancelledTasks int    `json:"cancelled_tasks"`
}

func (e InstanceCancelled) GetType() EventType {
	return InstanceCancelledEvent
}

type InstancePaused struct {
	BaseEvent
}

func (e InstancePaused) GetType() EventType {
	return InstancePausedEvent
}

type InstanceResumed struct {
	BaseEvent
}

func (e InstanceResumed) GetType() EventType {
	return InstanceResumedEvent
}

type NodeDispatched struct {
	BaseEvent

	NodeID   string          `json:"node_id"`
	NodeType models.NodeType `json:"node_type"`
	Outputs  map[string]any  `json:"outputs,omitempty"`
}

func (e NodeDispatched) GetType() EventType {
	return NodeDispatchedEvent
}

type NodeFailed struct {
	BaseEvent

	NodeID string `json:"node_id"`
	Error  string `json:"error"`
}

func (e NodeFailed) GetType() EventType {
	return NodeFailedEvent
}

type TaskCreated struct {
	BaseEvent

	TaskID   string     `json:"task_id"`
	NodeID   string     `json:"node_id"`
	Assignee string     `json:"assignee"`
	DueAt    *time.Time `json:"due_at,omitempty"`
}

func (e TaskCreated) GetType() EventType {
	return TaskCreatedEvent
}

type TaskClaimed struct {
	BaseEvent

	TaskID    string `json:"task_id"`
	ClaimedBy string `json:"claimed_by"`
}

func (e TaskClaimed) GetType() EventType {
	return TaskClaimedEvent
}

type TaskReleased struct {
	BaseEvent

	TaskID     string `json:"task_id"`
	ReleasedBy string `json:"released_by"`
}

func (e TaskReleased) GetType() EventType {
	return TaskReleasedEvent
}

type TaskCompleted struct {
	BaseEvent

	TaskID      string `json:"task_id"`
	CompletedBy string `json:"completed_by"`
	Outcome     string `json:"outcome"`
}

func (e TaskCompleted) GetType() EventType {
	return TaskCompletedEvent
}

type TaskDelegated struct {
	BaseEvent

	TaskID      string `json:"task_id"`
	DelegatedBy string `json:"delegated_by"`
	NewAssignee string `json:"new_assignee"`
}

func (e TaskDelegated) GetType() EventType {
	return TaskDelegatedEvent
}

type TaskCancelled struct {
	BaseEvent

	TaskID string `json:"task_id"`
}

func (e TaskCancelled) GetType() EventType {
	return TaskCancelledEvent
}

// SLABreached is emitted once per overdue item per sweep that first detects
// the breach.
type SLABreached struct {
	BaseEvent

	ItemKind string    `json:"item_kind"` // "task" or "instance"
	ItemID   string    `json:"item_id"`
	DueAt    time.Time `json:"due_at"`
	Role     string    `json:"role,omitempty"` // escalation target
}

func (e SLABreached) GetType() EventType {
	return SLABreachedEvent
}

type DefinitionPublished struct {
	BaseEvent

	DefinitionID string `json:"definition_id"`
	GroupID      string `json:"group_id"`
	Version      int    `json:"version"`
}

func (e DefinitionPublished) GetType() EventType {
	return DefinitionPublishedEvent
}

type DefinitionUnpublished struct {
	BaseEvent

	DefinitionID string `json:"definition_id"`
	GroupID      string `json:"group_id"`
}

func (e DefinitionUnpublished) GetType() EventType {
	return DefinitionUnpublishedEvent
}
