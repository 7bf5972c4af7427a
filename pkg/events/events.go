// Package events defines the execution progress events streamed to subscribers.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/try-flowforge/backend/pkg/models"
)

type EventType string

// Topic carries every execution event; messages are keyed by execution id.
const Topic = "flowforge.execution-events"

const (
	EventMetadataKey     = "key"
	EventTypeMetadataKey = "event_type"
)

const (
	ExecutionStarted   EventType = "execution:started"
	ExecutionCompleted EventType = "execution:completed"
	ExecutionFailed    EventType = "execution:failed"
	NodeStarted        EventType = "node:started"
	NodeCompleted      EventType = "node:completed"
	NodeFailed         EventType = "node:failed"
)

// IsTerminal reports whether no further events follow for the execution.
func (t EventType) IsTerminal() bool {
	return t == ExecutionCompleted || t == ExecutionFailed
}

// ExecutionEvent reports progress of one execution.
type ExecutionEvent struct {
	ID          string                 `json:"id"`
	Type        EventType              `json:"type"`
	ExecutionID string                 `json:"executionId"`
	WorkflowID  string                 `json:"workflowId"`
	UserID      string                 `json:"userId"`
	Timestamp   time.Time              `json:"timestamp"`
	Status      models.ExecutionStatus `json:"status,omitempty"`
	NodeID      string                 `json:"nodeId,omitempty"`
	NodeType    models.NodeType        `json:"nodeType,omitempty"`
	Output      any                    `json:"output,omitempty"`
	Error       *models.ExecutionError `json:"error,omitempty"`
	DurationMs  int64                  `json:"durationMs,omitempty"`
}

func newEvent(eventType EventType, execCtx *models.WorkflowExecutionContext) *ExecutionEvent {
	return &ExecutionEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		ExecutionID: execCtx.ExecutionID,
		WorkflowID:  execCtx.WorkflowID,
		UserID:      execCtx.UserID,
		Timestamp:   time.Now().UTC(),
		Status:      execCtx.Status,
	}
}

func NewExecutionStarted(execCtx *models.WorkflowExecutionContext) *ExecutionEvent {
	return newEvent(ExecutionStarted, execCtx)
}

// NewExecutionFinished returns execution:completed or execution:failed depending on the final status.
func NewExecutionFinished(execCtx *models.WorkflowExecutionContext) *ExecutionEvent {
	eventType := ExecutionCompleted
	if execCtx.Status != models.ExecutionStatusSuccess {
		eventType = ExecutionFailed
	}

	event := newEvent(eventType, execCtx)
	event.Error = execCtx.Error

	if execCtx.CompletedAt != nil {
		event.DurationMs = execCtx.CompletedAt.Sub(execCtx.StartedAt).Milliseconds()
	}

	return event
}

func NewNodeStarted(execCtx *models.WorkflowExecutionContext, node *models.WorkflowNode) *ExecutionEvent {
	event := newEvent(NodeStarted, execCtx)
	event.NodeID = node.ID
	event.NodeType = node.Type

	return event
}

func NewNodeCompleted(execCtx *models.WorkflowExecutionContext, node *models.WorkflowNode, output any, duration time.Duration) *ExecutionEvent {
	event := newEvent(NodeCompleted, execCtx)
	event.NodeID = node.ID
	event.NodeType = node.Type
	event.Output = output
	event.DurationMs = duration.Milliseconds()

	return event
}

func NewNodeFailed(execCtx *models.WorkflowExecutionContext, node *models.WorkflowNode, code, message string, duration time.Duration) *ExecutionEvent {
	event := newEvent(NodeFailed, execCtx)
	event.NodeID = node.ID
	event.NodeType = node.Type
	event.Error = &models.ExecutionError{Code: code, Message: message, NodeID: node.ID}
	event.DurationMs = duration.Milliseconds()

	return event
}
