package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrExecutionNotFound indicates no execution row exists for the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrNodeExecutionNotFound indicates a node execution record was not found.
	ErrNodeExecutionNotFound = errors.New("node execution not found")

	// ErrTimeBlockNotFound indicates a time block was not found.
	ErrTimeBlockNotFound = errors.New("time block not found")
)

// WorkflowError wraps workflow-related errors with additional context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "GetDefinition", "SaveDefinition")
	WorkflowID string
	Err        error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for workflow errors.
func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// ExecutionError wraps execution and node-execution errors with context.
type ExecutionError struct {
	Op          string
	ExecutionID string
	NodeID      string
	Err         error
}

func (e *ExecutionError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s operation failed for node %s in execution %s: %v", e.Op, e.NodeID, e.ExecutionID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{Op: op, ExecutionID: executionID, Err: err}
}

func NewNodeExecutionError(op, executionID, nodeID string, err error) *ExecutionError {
	return &ExecutionError{Op: op, ExecutionID: executionID, NodeID: nodeID, Err: err}
}

// TimeBlockError wraps time block errors with context.
type TimeBlockError struct {
	Op          string
	TimeBlockID string
	Err         error
}

func (e *TimeBlockError) Error() string {
	return fmt.Sprintf("%s operation failed for time block %s: %v", e.Op, e.TimeBlockID, e.Err)
}

func (e *TimeBlockError) Unwrap() error {
	return e.Err
}

func (e *TimeBlockError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewTimeBlockError(op, id string, err error) *TimeBlockError {
	return &TimeBlockError{Op: op, TimeBlockID: id, Err: err}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

func IsNodeExecutionNotFound(err error) bool {
	return errors.Is(err, ErrNodeExecutionNotFound)
}

func IsTimeBlockNotFound(err error) bool {
	return errors.Is(err, ErrTimeBlockNotFound)
}
