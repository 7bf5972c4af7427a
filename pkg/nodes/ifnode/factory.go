// Package ifnode provides the IF branch processor.
package ifnode

import (
	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/nodes/condition"
	"github.com/try-flowforge/backend/pkg/protocol"
)

const (
	BranchTrue  = "true"
	BranchFalse = "false"
)

// Processor evaluates a single condition and selects the "true" or "false" handle.
type Processor struct{}

// NewProcessor creates an IF processor.
func NewProcessor() *Processor {
	return &Processor{}
}

var (
	_ protocol.NodeProcessor = (*Processor)(nil)
	_ protocol.Describer     = (*Processor)(nil)
)

func (p *Processor) NodeType() models.NodeType {
	return models.NodeTypeIf
}

func (p *Processor) Name() string {
	return "If"
}

func (p *Processor) Description() string {
	return "Compares a value from the input with a constant and follows the true or false branch"
}

// Schema returns the JSON schema for IF node configuration.
func (p *Processor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"leftPath": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Dot path into the node input, e.g. blocks.price-1.price",
			},
			"operator": map[string]any{
				"type": "string",
				"enum": condition.OperatorNames(),
			},
			"rightValue": map[string]any{
				"description": "Value compared against the left side. Unused by is_empty and is_not_empty",
			},
		},
		"required": []string{"leftPath", "operator"},
		"examples": []map[string]any{
			{"leftPath": "blocks.oracle.price", "operator": "gt", "rightValue": 2000},
			{"leftPath": "status", "operator": "eq", "rightValue": "ok"},
		},
	}
}
