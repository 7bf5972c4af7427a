package models

import "time"

// ExecutionStatus is shared by workflow executions and node execution records.
type ExecutionStatus string

const (
	ExecutionStatusPending             ExecutionStatus = "PENDING"
	ExecutionStatusRunning             ExecutionStatus = "RUNNING"
	ExecutionStatusSuccess             ExecutionStatus = "SUCCESS"
	ExecutionStatusFailed              ExecutionStatus = "FAILED"
	ExecutionStatusCancelled           ExecutionStatus = "CANCELLED"
	ExecutionStatusRetrying            ExecutionStatus = "RETRYING"
	ExecutionStatusWaitingForSignature ExecutionStatus = "WAITING_FOR_SIGNATURE"
	ExecutionStatusWaitingForClientTx  ExecutionStatus = "WAITING_FOR_CLIENT_TX"
)

// IsTerminal reports whether no further transition is expected.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusSuccess, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// Error codes written on failed executions.
const (
	ErrorCodeWorkflowExecution = "WORKFLOW_EXECUTION_ERROR"
	ErrorCodeNodeExecution     = "NODE_EXECUTION_ERROR"
	ErrorCodeInvalidConfig     = "INVALID_NODE_CONFIG"
	ErrorCodeMaxSteps          = "MAX_STEPS_EXCEEDED"
)

// WorkflowExecution is the persisted row of one run.
type WorkflowExecution struct {
	ID              string          `json:"id"`
	WorkflowID      string          `json:"workflowId"`
	WorkflowVersion int             `json:"workflowVersion"`
	UserID          string          `json:"userId"`
	TriggeredBy     string          `json:"triggeredBy"`
	Status          ExecutionStatus `json:"status"`
	InitialInput    map[string]any  `json:"initialInput,omitempty"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
	ErrorCode       *string         `json:"errorCode,omitempty"`
	ErrorMessage    *string         `json:"errorMessage,omitempty"`
	FailedNodeID    *string         `json:"failedNodeId,omitempty"`
	StartedAt       time.Time       `json:"startedAt"`
	CompletedAt     *time.Time      `json:"completedAt,omitempty"`
}

// NodeExecutionRecord is the persisted trace of one node run inside an execution.
type NodeExecutionRecord struct {
	ID          string          `json:"id"`
	ExecutionID string          `json:"executionId"`
	NodeID      string          `json:"nodeId"`
	NodeType    NodeType        `json:"nodeType"`
	InputData   map[string]any  `json:"inputData,omitempty"`
	OutputData  any             `json:"outputData,omitempty"`
	Status      ExecutionStatus `json:"status"`
	Error       *string         `json:"error,omitempty"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	DurationMs  int64           `json:"durationMs"`
}

// ExecutionError is the error captured on an in-memory execution context.
type ExecutionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	NodeID  string `json:"nodeId,omitempty"`
}

// WorkflowExecutionContext is the in-memory state of one run. It is owned by a
// single orchestrator call and NodeOutputs only ever grows.
type WorkflowExecutionContext struct {
	ExecutionID   string          `json:"executionId"`
	WorkflowID    string          `json:"workflowId"`
	UserID        string          `json:"userId"`
	TriggeredBy   string          `json:"triggeredBy"`
	InitialInput  map[string]any  `json:"initialInput,omitempty"`
	NodeOutputs   map[string]any  `json:"nodeOutputs"`
	Status        ExecutionStatus `json:"status"`
	StartedAt     time.Time       `json:"startedAt"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
	Error         *ExecutionError `json:"error,omitempty"`
	CurrentNodeID string          `json:"currentNodeId,omitempty"`
}

// NewExecutionContext returns a pending context with an empty output accumulator.
func NewExecutionContext(executionID, workflowID, userID, triggeredBy string, input map[string]any) *WorkflowExecutionContext {
	if input == nil {
		input = map[string]any{}
	}

	return &WorkflowExecutionContext{
		ExecutionID:  executionID,
		WorkflowID:   workflowID,
		UserID:       userID,
		TriggeredBy:  triggeredBy,
		InitialInput: input,
		NodeOutputs:  map[string]any{},
		Status:       ExecutionStatusPending,
		StartedAt:    time.Now().UTC(),
	}
}

// ContextFromExecution rebuilds an execution context from a persisted row and
// its node records. Only successful node outputs are restored.
func ContextFromExecution(execution *WorkflowExecution, records []*NodeExecutionRecord) *WorkflowExecutionContext {
	execCtx := NewExecutionContext(execution.ID, execution.WorkflowID, execution.UserID, execution.TriggeredBy, execution.InitialInput)
	execCtx.Status = execution.Status
	execCtx.StartedAt = execution.StartedAt
	execCtx.CompletedAt = execution.CompletedAt

	if execution.ErrorMessage != nil {
		execCtx.Error = &ExecutionError{Message: *execution.ErrorMessage}
		if execution.ErrorCode != nil {
			execCtx.Error.Code = *execution.ErrorCode
		}

		if execution.FailedNodeID != nil {
			execCtx.Error.NodeID = *execution.FailedNodeID
		}
	}

	for _, record := range records {
		if record.Status == ExecutionStatusSuccess {
			execCtx.NodeOutputs[record.NodeID] = record.OutputData
		}
	}

	return execCtx
}
