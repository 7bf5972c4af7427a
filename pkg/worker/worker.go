// Package worker holds the queue handlers that turn jobs into workflow runs,
// standalone node runs, LLM calls and time block firings.
package worker

import (
	"context"

	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/protocol"
	"github.com/try-flowforge/backend/pkg/queue"
	"github.com/try-flowforge/backend/pkg/workflow"
)

type Orchestrator interface {
	ExecuteWorkflow(ctx context.Context, req workflow.ExecuteRequest) (*models.WorkflowExecutionContext, error)
}

type ProcessorRegistry interface {
	GetProcessor(nodeType models.NodeType) (protocol.NodeProcessor, error)
}

// Enqueuer adds jobs to a queue.
type Enqueuer interface {
	Add(ctx context.Context, queueName string, payload any, opts queue.AddOptions) (string, bool, error)
}

// Unscheduler drops the repeat schedule of a time block.
type Unscheduler interface {
	Unschedule(timeBlockID string)
}

// NodeQueues lists the queues served by the node handler.
var NodeQueues = []string{
	queue.NodeExecution,
	queue.SwapExecution,
	queue.LendingExecution,
	queue.PerpsExecution,
}
