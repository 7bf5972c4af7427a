package switchnode

import (
	"context"
	"fmt"
	"time"

	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/nodes/condition"
	"github.com/try-flowforge/backend/pkg/protocol"
	"github.com/try-flowforge/backend/pkg/template"
)

// Case is one SWITCH branch. Its ID is the source handle of the edge it selects.
type Case struct {
	ID        string `json:"id"`
	Operator  string `json:"operator"`
	Value     any    `json:"value"`
	IsDefault bool   `json:"isDefault"`
}

// Config is the SWITCH node configuration.
type Config struct {
	ValuePath string `json:"valuePath"`
	Cases     []Case `json:"cases"`
}

func (p *Processor) Execute(_ context.Context, input *protocol.NodeExecutionInput) (*protocol.NodeExecutionOutput, error) {
	startedAt := time.Now().UTC()

	var config Config

	err := protocol.DecodeConfig(input.NodeConfig, &config)
	if err != nil {
		return protocol.Failed(input.NodeID, models.ErrorCodeInvalidConfig, err.Error(), startedAt), nil
	}

	value, _ := template.Resolve(input.InputData, config.ValuePath)

	matched, err := match(value, config.Cases)
	if err != nil {
		return protocol.Failed(input.NodeID, models.ErrorCodeInvalidConfig, err.Error(), startedAt), nil
	}

	var matchedCaseID any
	if matched != "" {
		matchedCaseID = matched
	}

	return protocol.Succeeded(input.NodeID, map[string]any{
		"value":          value,
		"matchedCaseId":  matchedCaseID,
		"branchToFollow": matched,
	}, startedAt), nil
}

// match returns the id of the first matching non-default case, falling back to
// the default case. An empty id means nothing matched.
func match(value any, cases []Case) (string, error) {
	defaultID := ""

	for _, c := range cases {
		if c.IsDefault {
			if defaultID == "" {
				defaultID = c.ID
			}

			continue
		}

		ok, err := condition.Evaluate(value, condition.Operator(c.Operator), c.Value)
		if err != nil {
			return "", fmt.Errorf("case %q: %w", c.ID, err)
		}

		if ok {
			return c.ID, nil
		}
	}

	return defaultID, nil
}

func (p *Processor) Validate(config map[string]any) protocol.ValidationResult {
	result := protocol.ValidateAgainstSchema(p.Schema(), config)
	if !result.Valid {
		return result
	}

	var parsed Config

	err := protocol.DecodeConfig(config, &parsed)
	if err != nil {
		return protocol.Invalid(err.Error())
	}

	var errs []string

	defaults := 0

	for _, c := range parsed.Cases {
		if c.IsDefault {
			defaults++

			continue
		}

		if !condition.Operator(c.Operator).IsValid() {
			errs = append(errs, fmt.Sprintf("case %q: operator is required", c.ID))
		}
	}

	if defaults > 1 {
		errs = append(errs, "at most one default case is allowed")
	}

	if len(errs) > 0 {
		return protocol.Invalid(errs...)
	}

	return protocol.Valid()
}
