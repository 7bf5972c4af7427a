package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/try-flowforge/backend/pkg/nodes/llm"
	"github.com/try-flowforge/backend/pkg/queue"
)

// Completer performs chat completions.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Completion, error)
}

type LLMHandler struct {
	client Completer
	logger *slog.Logger
}

func NewLLMHandler(client Completer, logger *slog.Logger) *LLMHandler {
	return &LLMHandler{
		client: client,
		logger: logger.With("module", "llm_worker"),
	}
}

// Handle calls the model for an llm-calls job. Rejections the provider will
// repeat are not retried.
func (h *LLMHandler) Handle(ctx context.Context, job *queue.Job) (any, error) {
	var payload queue.NodeExecutionJob

	err := job.Decode(&payload)
	if err != nil {
		return nil, err
	}

	req, err := llm.RequestFromConfig(payload.NodeConfig)
	if err != nil {
		return nil, queue.Permanent(fmt.Errorf("invalid llm request for node %s: %w", payload.NodeID, err))
	}

	completion, err := h.client.Complete(ctx, req)
	if err != nil {
		var apiErr *llm.APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return nil, queue.Permanent(err)
		}

		return nil, err
	}

	h.logger.DebugContext(ctx, "LLM call completed",
		"job_id", job.ID,
		"node_id", payload.NodeID,
		"model", completion.Model,
		"total_tokens", completion.Usage.TotalTokens,
	)

	return completion, nil
}
