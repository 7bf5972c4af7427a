// Package transform provides the TRANSFORM processor, which reshapes upstream
// outputs with {{...}} templates. Placeholders are rendered before Execute, so
// the processor emits its configuration as is.
package transform

import (
	"context"
	"time"

	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/protocol"
)

type Processor struct{}

func NewProcessor() *Processor {
	return &Processor{}
}

var (
	_ protocol.NodeProcessor = (*Processor)(nil)
	_ protocol.Describer     = (*Processor)(nil)
)

func (p *Processor) NodeType() models.NodeType {
	return models.NodeTypeTransform
}

func (p *Processor) Name() string {
	return "Transform"
}

func (p *Processor) Description() string {
	return "Builds a new object or value from upstream outputs using {{...}} placeholders"
}

// Schema returns the JSON schema for Transform node configuration.
func (p *Processor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"mapping": map[string]any{
				"type":        "object",
				"description": "Object whose values are rendered; the rendered object becomes the output",
				"examples": []map[string]any{
					{"price": "{{blocks.oracle.price}}", "label": "{{blocks.oracle.symbol}} price"},
				},
			},
			"expression": map[string]any{
				"type":        "string",
				"description": "Single template rendered into output.result",
			},
		},
		"oneOf": []map[string]any{
			{"required": []string{"mapping"}},
			{"required": []string{"expression"}},
		},
	}
}

func (p *Processor) Execute(_ context.Context, input *protocol.NodeExecutionInput) (*protocol.NodeExecutionOutput, error) {
	startedAt := time.Now().UTC()

	if mapping, ok := input.NodeConfig["mapping"].(map[string]any); ok {
		return protocol.Succeeded(input.NodeID, mapping, startedAt), nil
	}

	expression, ok := input.NodeConfig["expression"]
	if !ok {
		return protocol.Failed(input.NodeID, models.ErrorCodeInvalidConfig, "one of 'mapping' or 'expression' is required", startedAt), nil
	}

	return protocol.Succeeded(input.NodeID, map[string]any{
		"result": expression,
	}, startedAt), nil
}

func (p *Processor) Validate(config map[string]any) protocol.ValidationResult {
	return protocol.ValidateAgainstSchema(p.Schema(), config)
}
