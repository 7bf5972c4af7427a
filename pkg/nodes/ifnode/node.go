package ifnode

import (
	"context"
	"time"

	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/nodes/condition"
	"github.com/try-flowforge/backend/pkg/protocol"
	"github.com/try-flowforge/backend/pkg/template"
)

// Config is the IF node configuration.
type Config struct {
	LeftPath   string `json:"leftPath"`
	Operator   string `json:"operator"`
	RightValue any    `json:"rightValue"`
}

func (p *Processor) Execute(_ context.Context, input *protocol.NodeExecutionInput) (*protocol.NodeExecutionOutput, error) {
	startedAt := time.Now().UTC()

	var config Config

	err := protocol.DecodeConfig(input.NodeConfig, &config)
	if err != nil {
		return protocol.Failed(input.NodeID, models.ErrorCodeInvalidConfig, err.Error(), startedAt), nil
	}

	leftValue, _ := template.Resolve(input.InputData, config.LeftPath)

	result, err := condition.Evaluate(leftValue, condition.Operator(config.Operator), config.RightValue)
	if err != nil {
		return protocol.Failed(input.NodeID, models.ErrorCodeInvalidConfig, err.Error(), startedAt), nil
	}

	branch := BranchFalse
	if result {
		branch = BranchTrue
	}

	return protocol.Succeeded(input.NodeID, map[string]any{
		"result":         result,
		"leftValue":      leftValue,
		"rightValue":     config.RightValue,
		"operator":       config.Operator,
		"branchToFollow": branch,
	}, startedAt), nil
}

func (p *Processor) Validate(config map[string]any) protocol.ValidationResult {
	return protocol.ValidateAgainstSchema(p.Schema(), config)
}
