package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/persistence"
	"github.com/try-flowforge/backend/pkg/queue"
)

// TriggeredBySchedule marks runs started by a time block.
const TriggeredBySchedule = "schedule"

var executionNamespace = uuid.MustParse("3f0c8f52-6d1e-5b7a-9c44-2a8e1d7b90c3")

// ExecutionIDForTrigger derives the execution id of the run started by a
// trigger job. Redelivered trigger jobs map to the same execution.
func ExecutionIDForTrigger(triggerJobID string) string {
	return uuid.NewSHA1(executionNamespace, []byte(triggerJobID)).String()
}

// TriggerResult is stored as the result of a scheduled-triggers job.
type TriggerResult struct {
	TimeBlockID string `json:"timeBlockId"`
	ExecutionID string `json:"executionId,omitempty"`
	Enqueued    bool   `json:"enqueued"`
	Skipped     string `json:"skipped,omitempty"`
}

type TriggerHandler struct {
	blocks      persistence.TimeBlockRepository
	jobs        Enqueuer
	unscheduler Unscheduler
	now         func() time.Time
	logger      *slog.Logger
}

// NewTriggerHandler creates the scheduled-triggers handler. unscheduler may be
// nil when no scheduler runs in this process.
func NewTriggerHandler(blocks persistence.TimeBlockRepository, jobs Enqueuer, unscheduler Unscheduler, logger *slog.Logger) *TriggerHandler {
	return &TriggerHandler{
		blocks:      blocks,
		jobs:        jobs,
		unscheduler: unscheduler,
		now:         time.Now,
		logger:      logger.With("module", "trigger_worker"),
	}
}

func (h *TriggerHandler) Handle(ctx context.Context, job *queue.Job) (any, error) {
	var payload queue.TriggerJob

	err := job.Decode(&payload)
	if err != nil {
		return nil, err
	}

	logger := h.logger.With("job_id", job.ID, "time_block_id", payload.TimeBlockID)

	block, err := h.blocks.GetTimeBlock(ctx, payload.TimeBlockID)
	if err != nil {
		if persistence.IsTimeBlockNotFound(err) {
			return nil, queue.Permanent(err)
		}

		return nil, err
	}

	reason := h.skipReason(block)
	if reason != "" {
		logger.InfoContext(ctx, "Skipping time block", "reason", reason, "status", block.Status)

		err = h.retire(ctx, block)
		if err != nil {
			return nil, err
		}

		return &TriggerResult{TimeBlockID: block.ID, Skipped: reason}, nil
	}

	counted, err := h.blocks.RecordTrigger(ctx, block.ID, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to record trigger of time block %s: %w", block.ID, err)
	}

	if counted {
		block.RunCount++
	}

	executionID := ExecutionIDForTrigger(job.ID)

	_, created, err := h.jobs.Add(ctx, queue.WorkflowExecution, queue.WorkflowExecutionJob{
		WorkflowID:  block.WorkflowID,
		UserID:      block.UserID,
		TriggeredBy: TriggeredBySchedule,
		ExecutionID: executionID,
		InitialInput: map[string]any{
			"timeBlockId":  block.ID,
			"triggerJobId": job.ID,
			"runCount":     block.RunCount,
		},
	}, queue.AddOptions{JobID: executionID})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue execution for time block %s: %w", block.ID, err)
	}

	logger.InfoContext(ctx, "Time block fired", "execution_id", executionID, "enqueued", created, "run_count", block.RunCount)

	if block.ScheduleType == models.ScheduleTypeOneShot || block.IsExhausted() {
		err = h.retire(ctx, block)
		if err != nil {
			return nil, err
		}
	}

	return &TriggerResult{TimeBlockID: block.ID, ExecutionID: executionID, Enqueued: created}, nil
}

func (h *TriggerHandler) skipReason(block *models.TimeBlock) string {
	switch {
	case block.Status != models.TimeBlockStatusActive:
		return "inactive"
	case block.IsExpired(h.now()):
		return "expired"
	case block.IsExhausted():
		return "exhausted"
	default:
		return ""
	}
}

// retire completes an active block and drops its schedule.
func (h *TriggerHandler) retire(ctx context.Context, block *models.TimeBlock) error {
	if block.Status == models.TimeBlockStatusActive {
		err := h.blocks.UpdateTimeBlockStatus(ctx, block.ID, models.TimeBlockStatusCompleted)
		if err != nil {
			return fmt.Errorf("failed to complete time block %s: %w", block.ID, err)
		}
	}

	if h.unscheduler != nil {
		h.unscheduler.Unschedule(block.ID)
	}

	return nil
}
