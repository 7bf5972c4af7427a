// Package queue implements durable named job queues on Redis with deduplication,
// delayed retries and a bounded worker pool per queue.
package queue

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/try-flowforge/backend/pkg/models"
)

// Queue names.
const (
	WorkflowExecution = "workflow-execution"
	NodeExecution     = "node-execution"
	SwapExecution     = "swap-execution"
	LendingExecution  = "lending-execution"
	PerpsExecution    = "perps-execution"
	LLMCalls          = "llm-calls"
	ScheduledTriggers = "scheduled-triggers"
)

// Names lists every queue the system consumes.
var Names = []string{
	WorkflowExecution,
	NodeExecution,
	SwapExecution,
	LendingExecution,
	PerpsExecution,
	LLMCalls,
	ScheduledTriggers,
}

// JobState is the lifecycle position of a job inside its queue.
type JobState string

const (
	JobStateWaiting   JobState = "waiting"
	JobStateDelayed   JobState = "delayed"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrWaitTimeout  = errors.New("timed out waiting for job result")
	ErrInvalidInput = errors.New("invalid job payload")
)

// Job is a unit of work stored under its id. The id doubles as an idempotency key.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	State       JobState        `json:"state"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Decode unmarshals and validates the job payload into v.
func (j *Job) Decode(v any) error {
	err := json.Unmarshal(j.Payload, v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	if reflect.Indirect(reflect.ValueOf(v)).Kind() != reflect.Struct {
		return nil
	}

	err = payloadValidator.Struct(v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	return nil
}

// JobFailedError is returned to result waiters when the job exhausted its attempts.
type JobFailedError struct {
	Queue   string
	JobID   string
	Message string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s on queue %s failed: %s", e.JobID, e.Queue, e.Message)
}

var payloadValidator = validator.New(validator.WithRequiredStructEnabled())

// WorkflowExecutionJob starts one run of a workflow.
type WorkflowExecutionJob struct {
	WorkflowID   string         `json:"workflowId"             validate:"required"`
	UserID       string         `json:"userId"                 validate:"required"`
	TriggeredBy  string         `json:"triggeredBy"            validate:"required"`
	ExecutionID  string         `json:"executionId,omitempty"`
	InitialInput map[string]any `json:"initialInput,omitempty"`
}

// NodeExecutionJob runs a single processor outside of a workflow walk.
type NodeExecutionJob struct {
	NodeID      string          `json:"nodeId"               validate:"required"`
	NodeType    models.NodeType `json:"nodeType"             validate:"required"`
	NodeConfig  map[string]any  `json:"nodeConfig"`
	InputData   map[string]any  `json:"inputData,omitempty"`
	ExecutionID string          `json:"executionId,omitempty"`
	UserID      string          `json:"userId,omitempty"`
}

// TriggerJob fires one occurrence of a time block.
type TriggerJob struct {
	TimeBlockID string `json:"timeBlockId" validate:"required"`
}

// result is the envelope pushed to waiters once a job settles.
type result struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}
