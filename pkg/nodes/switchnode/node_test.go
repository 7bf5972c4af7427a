package switchnode_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/try-flowforge/backend/pkg/nodes/switchnode"
	"github.com/try-flowforge/backend/pkg/protocol"
)

func runSwitch(t *testing.T, config map[string]any, input map[string]any) map[string]any {
	t.Helper()

	output, err := switchnode.NewProcessor().Execute(context.Background(), &protocol.NodeExecutionInput{
		NodeID:     "switch-1",
		NodeConfig: config,
		InputData:  input,
	})
	require.NoError(t, err)
	require.True(t, output.Success)

	result, ok := output.Output.(map[string]any)
	require.True(t, ok)

	return result
}

func TestProcessor_FirstMatchWins(t *testing.T) {
	t.Parallel()

	config := map[string]any{
		"valuePath": "amount",
		"cases": []any{
			map[string]any{"id": "big", "operator": "gte", "value": 100},
			map[string]any{"id": "positive", "operator": "gt", "value": 0},
			map[string]any{"id": "fallback", "isDefault": true},
		},
	}

	result := runSwitch(t, config, map[string]any{"amount": "150"})
	assert.Equal(t, "big", result["branchToFollow"])
	assert.Equal(t, "big", result["matchedCaseId"])

	result = runSwitch(t, config, map[string]any{"amount": 5})
	assert.Equal(t, "positive", result["branchToFollow"])
}

func TestProcessor_DefaultCase(t *testing.T) {
	t.Parallel()

	config := map[string]any{
		"valuePath": "symbol",
		"cases": []any{
			map[string]any{"id": "other", "isDefault": true},
			map[string]any{"id": "eth", "operator": "eq", "value": "ETH"},
		},
	}

	result := runSwitch(t, config, map[string]any{"symbol": "BTC"})
	assert.Equal(t, "other", result["branchToFollow"])
	assert.Equal(t, "BTC", result["value"])

	result = runSwitch(t, config, map[string]any{"symbol": "ETH"})
	assert.Equal(t, "eth", result["branchToFollow"])
}

func TestProcessor_NoMatchWithoutDefault(t *testing.T) {
	t.Parallel()

	config := map[string]any{
		"valuePath": "symbol",
		"cases": []any{
			map[string]any{"id": "eth", "operator": "eq", "value": "ETH"},
		},
	}

	result := runSwitch(t, config, map[string]any{"symbol": "SOL"})
	assert.Empty(t, result["branchToFollow"])
	assert.Nil(t, result["matchedCaseId"])
}

func TestProcessor_Validate(t *testing.T) {
	t.Parallel()

	processor := switchnode.NewProcessor()

	valid := map[string]any{
		"valuePath": "a",
		"cases": []any{
			map[string]any{"id": "x", "operator": "eq", "value": 1},
			map[string]any{"id": "d", "isDefault": true},
		},
	}
	assert.True(t, processor.Validate(valid).Valid)

	twoDefaults := map[string]any{
		"valuePath": "a",
		"cases": []any{
			map[string]any{"id": "d1", "isDefault": true},
			map[string]any{"id": "d2", "isDefault": true},
		},
	}
	assert.False(t, processor.Validate(twoDefaults).Valid)

	missingOperator := map[string]any{
		"valuePath": "a",
		"cases":     []any{map[string]any{"id": "x", "value": 1}},
	}
	assert.False(t, processor.Validate(missingOperator).Valid)

	assert.False(t, processor.Validate(map[string]any{"valuePath": "a"}).Valid)
}
