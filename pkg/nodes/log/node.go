package log

import (
	"context"
	"time"

	flowlog "github.com/try-flowforge/backend/pkg/log"
	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/protocol"
	"github.com/try-flowforge/backend/pkg/template"
)

// Config is the LOG node configuration. Message is usually text, but a lone
// placeholder may have rendered to any value.
type Config struct {
	Message any    `json:"message"`
	Level   string `json:"level"`
}

func (p *Processor) Execute(ctx context.Context, input *protocol.NodeExecutionInput) (*protocol.NodeExecutionOutput, error) {
	startedAt := time.Now().UTC()

	var config Config

	err := protocol.DecodeConfig(input.NodeConfig, &config)
	if err != nil {
		return protocol.Failed(input.NodeID, models.ErrorCodeInvalidConfig, err.Error(), startedAt), nil
	}

	if config.Level == "" {
		config.Level = "info"
	}

	message := template.Stringify(config.Message)

	logger := p.logger.With("node_id", input.NodeID)
	if input.ExecutionContext != nil {
		logger = logger.With("execution_id", input.ExecutionContext.ExecutionID, "workflow_id", input.ExecutionContext.WorkflowID)
	}

	logger.Log(ctx, flowlog.ParseLevel(config.Level), message)

	output := protocol.Passthrough(input.InputData)
	output["message"] = message
	output["level"] = config.Level

	return protocol.Succeeded(input.NodeID, output, startedAt), nil
}

func (p *Processor) Validate(config map[string]any) protocol.ValidationResult {
	return protocol.ValidateAgainstSchema(p.Schema(), config)
}
