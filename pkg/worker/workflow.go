package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/persistence"
	"github.com/try-flowforge/backend/pkg/queue"
	"github.com/try-flowforge/backend/pkg/workflow"
)

// ExecutionResult is stored as the result of a workflow-execution job.
type ExecutionResult struct {
	ExecutionID string                 `json:"executionId"`
	Status      models.ExecutionStatus `json:"status"`
	Error       *models.ExecutionError `json:"error,omitempty"`
}

type WorkflowHandler struct {
	orchestrator Orchestrator
	logger       *slog.Logger
}

func NewWorkflowHandler(orchestrator Orchestrator, logger *slog.Logger) *WorkflowHandler {
	return &WorkflowHandler{
		orchestrator: orchestrator,
		logger:       logger.With("module", "workflow_worker"),
	}
}

// Handle runs the workflow of a WorkflowExecutionJob. The job id is the
// execution id unless the payload names one, so a redelivered job resumes
// instead of starting a second run.
func (h *WorkflowHandler) Handle(ctx context.Context, job *queue.Job) (any, error) {
	var payload queue.WorkflowExecutionJob

	err := job.Decode(&payload)
	if err != nil {
		return nil, err
	}

	executionID := payload.ExecutionID
	if executionID == "" {
		executionID = job.ID
	}

	logger := h.logger.With("job_id", job.ID, "workflow_id", payload.WorkflowID, "execution_id", executionID)

	execCtx, err := h.orchestrator.ExecuteWorkflow(ctx, workflow.ExecuteRequest{
		WorkflowID:   payload.WorkflowID,
		UserID:       payload.UserID,
		TriggeredBy:  payload.TriggeredBy,
		InitialInput: payload.InitialInput,
		ExecutionID:  executionID,
	})
	if execCtx == nil {
		if persistence.IsWorkflowNotFound(err) || errors.Is(err, workflow.ErrAccessDenied) {
			return nil, queue.Permanent(err)
		}

		return nil, err
	}

	if err != nil {
		logger.WarnContext(ctx, "Workflow execution failed", "error", err)
	}

	return &ExecutionResult{
		ExecutionID: execCtx.ExecutionID,
		Status:      execCtx.Status,
		Error:       execCtx.Error,
	}, nil
}
