// Package log provides the LOG processor.
package log

import (
	"log/slog"

	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/protocol"
)

var levels = []string{"debug", "info", "warn", "error"}

// Processor writes a rendered message to the workflow logger and passes its input through.
type Processor struct {
	logger *slog.Logger
}

// NewProcessor creates a LOG processor writing to logger.
func NewProcessor(logger *slog.Logger) *Processor {
	return &Processor{logger: logger.With("module", "log_node")}
}

var (
	_ protocol.NodeProcessor = (*Processor)(nil)
	_ protocol.Describer     = (*Processor)(nil)
)

func (p *Processor) NodeType() models.NodeType {
	return models.NodeTypeLog
}

func (p *Processor) Name() string {
	return "Log"
}

func (p *Processor) Description() string {
	return "Logs a message at the given level with template support for upstream outputs"
}

// Schema returns the JSON schema for LOG node configuration.
func (p *Processor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log. Supports {{blocks.<nodeId>.<field>}} placeholders",
				"examples": []string{
					"Price is {{blocks.oracle.price}}",
					"Swap {{blocks.swap-1.txHash}} confirmed",
				},
			},
			"level": map[string]any{
				"type":    "string",
				"enum":    levels,
				"default": "info",
			},
		},
		"required": []string{"message"},
	}
}
