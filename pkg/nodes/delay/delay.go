// Package delay provides the DELAY processor.
package delay

import (
	"context"
	"time"

	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/protocol"
)

// MaxDuration bounds how long a single DELAY node may hold a worker.
const MaxDuration = 5 * time.Minute

const ErrorCodeCancelled = "DELAY_CANCELLED"

// Config is the DELAY node configuration.
type Config struct {
	DurationMs int64 `json:"durationMs"`
}

// Processor waits for a fixed duration and passes its input through.
type Processor struct{}

func NewProcessor() *Processor {
	return &Processor{}
}

func (p *Processor) NodeType() models.NodeType {
	return models.NodeTypeDelay
}

func (p *Processor) Name() string {
	return "Delay"
}

func (p *Processor) Description() string {
	return "Waits for the configured number of milliseconds before continuing"
}

func (p *Processor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"durationMs": map[string]any{
				"type":    "integer",
				"minimum": 0,
				"maximum": MaxDuration.Milliseconds(),
			},
		},
		"required": []string{"durationMs"},
	}
}

func (p *Processor) Execute(ctx context.Context, input *protocol.NodeExecutionInput) (*protocol.NodeExecutionOutput, error) {
	startedAt := time.Now().UTC()

	var config Config

	err := protocol.DecodeConfig(input.NodeConfig, &config)
	if err != nil {
		return protocol.Failed(input.NodeID, models.ErrorCodeInvalidConfig, err.Error(), startedAt), nil
	}

	duration := min(max(time.Duration(config.DurationMs)*time.Millisecond, 0), MaxDuration)

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return protocol.Failed(input.NodeID, ErrorCodeCancelled, ctx.Err().Error(), startedAt), nil
	case <-timer.C:
	}

	output := protocol.Passthrough(input.InputData)
	output["delayedMs"] = duration.Milliseconds()

	return protocol.Succeeded(input.NodeID, output, startedAt), nil
}

func (p *Processor) Validate(config map[string]any) protocol.ValidationResult {
	return protocol.ValidateAgainstSchema(p.Schema(), config)
}
