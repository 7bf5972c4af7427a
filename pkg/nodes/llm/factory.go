// Package llm provides the LLM_TRANSFORM processor and the chat completion
// client used by the llm-calls queue worker.
package llm

import (
	"context"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"
	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/protocol"
	"github.com/try-flowforge/backend/pkg/queue"
)

// Jobs is the subset of the queue client the processor needs.
type Jobs interface {
	Add(ctx context.Context, queueName string, payload any, opts queue.AddOptions) (string, bool, error)
	WaitForResult(ctx context.Context, queueName, jobID string, timeout time.Duration) (json.RawMessage, error)
}

// Processor hands LLM calls to the llm-calls queue and blocks until a worker answers.
type Processor struct {
	jobs    Jobs
	timeout time.Duration
	logger  *slog.Logger
}

// NewProcessor creates an LLM_TRANSFORM processor waiting at most timeout for each call.
func NewProcessor(jobs Jobs, timeout time.Duration, logger *slog.Logger) *Processor {
	return &Processor{
		jobs:    jobs,
		timeout: timeout,
		logger:  logger.With("module", "llm_node"),
	}
}

var (
	_ protocol.NodeProcessor = (*Processor)(nil)
	_ protocol.Describer     = (*Processor)(nil)
)

func (p *Processor) NodeType() models.NodeType {
	return models.NodeTypeLLMTransform
}

func (p *Processor) Name() string {
	return "LLM Transform"
}

func (p *Processor) Description() string {
	return "Sends a rendered prompt to a chat completion model and returns its answer"
}

func (p *Processor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "User prompt. Supports {{blocks.<nodeId>.<field>}} placeholders",
			},
			"systemPrompt": map[string]any{"type": "string"},
			"model":        map[string]any{"type": "string"},
			"temperature":  map[string]any{"type": "number", "minimum": 0, "maximum": 2},
			"maxTokens":    map[string]any{"type": "integer", "minimum": 1, "maximum": 32000},
			"jsonOutput": map[string]any{
				"type":        "boolean",
				"description": "Ask the model for a JSON object and parse it into the output",
			},
		},
		"required": []string{"prompt"},
		"examples": []map[string]any{
			{"prompt": "Summarize: {{blocks.http-1.body}}", "maxTokens": 200},
		},
	}
}
