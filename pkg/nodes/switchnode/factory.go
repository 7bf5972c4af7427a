// Package switchnode provides the SWITCH branch processor.
package switchnode

import (
	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/nodes/condition"
	"github.com/try-flowforge/backend/pkg/protocol"
)

// Processor matches a value against ordered cases and selects the handle of the first match.
type Processor struct{}

// NewProcessor creates a SWITCH processor.
func NewProcessor() *Processor {
	return &Processor{}
}

var (
	_ protocol.NodeProcessor = (*Processor)(nil)
	_ protocol.Describer     = (*Processor)(nil)
)

func (p *Processor) NodeType() models.NodeType {
	return models.NodeTypeSwitch
}

func (p *Processor) Name() string {
	return "Switch"
}

func (p *Processor) Description() string {
	return "Routes execution to the first case whose condition matches, or to the default case"
}

func (p *Processor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"valuePath": map[string]any{
				"type":      "string",
				"minLength": 1,
			},
			"cases": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":        map[string]any{"type": "string", "minLength": 1},
						"operator":  map[string]any{"type": "string", "enum": condition.OperatorNames()},
						"value":     map[string]any{},
						"isDefault": map[string]any{"type": "boolean"},
					},
					"required": []string{"id"},
				},
			},
		},
		"required": []string{"valuePath", "cases"},
		"examples": []map[string]any{
			{
				"valuePath": "blocks.oracle.symbol",
				"cases": []map[string]any{
					{"id": "eth", "operator": "eq", "value": "ETH"},
					{"id": "other", "isDefault": true},
				},
			},
		},
	}
}
