// Package persistence defines the graph store used by the execution core.
package persistence

import (
	"context"
	"time"

	"github.com/try-flowforge/backend/pkg/models"
)

// WorkflowRepository loads workflow definitions. Definitions are read fresh for
// every run and never cached by callers.
type WorkflowRepository interface {
	GetDefinition(ctx context.Context, workflowID string) (*models.WorkflowDefinition, error)
	SaveDefinition(ctx context.Context, definition *models.WorkflowDefinition) error
	UpdateLastExecuted(ctx context.Context, workflowID string, at time.Time) error
}

// ExecutionRepository stores workflow execution rows.
type ExecutionRepository interface {
	// CreateExecution inserts the row unless one with the same id exists. It
	// reports whether this call created it.
	CreateExecution(ctx context.Context, execution *models.WorkflowExecution) (bool, error)
	GetExecution(ctx context.Context, executionID string) (*models.WorkflowExecution, error)
	UpdateExecution(ctx context.Context, execution *models.WorkflowExecution) error
}

// NodeExecutionRepository stores per-node records of an execution.
type NodeExecutionRepository interface {
	CreateNodeExecution(ctx context.Context, record *models.NodeExecutionRecord) error
	UpdateNodeExecution(ctx context.Context, record *models.NodeExecutionRecord) error
	ListNodeExecutions(ctx context.Context, executionID string) ([]*models.NodeExecutionRecord, error)
}

// TimeBlockRepository stores schedules that start workflows.
type TimeBlockRepository interface {
	GetTimeBlock(ctx context.Context, id string) (*models.TimeBlock, error)
	SaveTimeBlock(ctx context.Context, block *models.TimeBlock) error
	ListActiveTimeBlocks(ctx context.Context) ([]*models.TimeBlock, error)
	// RecordTrigger increments the run counter once per trigger job id and
	// reports whether the counter moved.
	RecordTrigger(ctx context.Context, id string, triggerJobID string) (bool, error)
	UpdateTimeBlockStatus(ctx context.Context, id string, status models.TimeBlockStatus) error
}

type Persistence interface {
	Workflows() WorkflowRepository
	Executions() ExecutionRepository
	NodeExecutions() NodeExecutionRepository
	TimeBlocks() TimeBlockRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
