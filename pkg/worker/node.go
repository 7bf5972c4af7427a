package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/protocol"
	"github.com/try-flowforge/backend/pkg/queue"
	"github.com/try-flowforge/backend/pkg/template"
)

type NodeHandler struct {
	registry ProcessorRegistry
	logger   *slog.Logger
}

func NewNodeHandler(registry ProcessorRegistry, logger *slog.Logger) *NodeHandler {
	return &NodeHandler{
		registry: registry,
		logger:   logger.With("module", "node_worker"),
	}
}

// Handle runs a single processor for a NodeExecutionJob and returns its
// output. A failed node output is a result, not a job failure.
func (h *NodeHandler) Handle(ctx context.Context, job *queue.Job) (any, error) {
	var payload queue.NodeExecutionJob

	err := job.Decode(&payload)
	if err != nil {
		return nil, err
	}

	processor, err := h.registry.GetProcessor(payload.NodeType)
	if err != nil {
		return nil, queue.Permanent(err)
	}

	validation := processor.Validate(payload.NodeConfig)
	if !validation.Valid {
		return nil, queue.Permanent(fmt.Errorf("invalid config for node %s: %s", payload.NodeID, strings.Join(validation.Errors, "; ")))
	}

	config := template.RenderConfig(payload.NodeConfig, payload.InputData)

	input := &protocol.NodeExecutionInput{
		NodeID:     payload.NodeID,
		NodeType:   payload.NodeType,
		NodeConfig: config,
		InputData:  payload.InputData,
	}

	if payload.ExecutionID != "" || payload.UserID != "" {
		input.ExecutionContext = models.NewExecutionContext(payload.ExecutionID, "", payload.UserID, job.Queue, nil)
	}

	output, err := processor.Execute(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to execute node %s: %w", payload.NodeID, err)
	}

	if !output.Success {
		h.logger.WarnContext(ctx, "Node job produced a failed output",
			"job_id", job.ID,
			"node_id", payload.NodeID,
			"node_type", payload.NodeType,
			"error", output.Error,
		)
	}

	return output, nil
}
