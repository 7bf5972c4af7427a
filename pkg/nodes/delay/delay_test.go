package delay_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/try-flowforge/backend/pkg/nodes/delay"
	"github.com/try-flowforge/backend/pkg/protocol"
)

func TestProcessor_Execute(t *testing.T) {
	t.Parallel()

	started := time.Now()

	output, err := delay.NewProcessor().Execute(context.Background(), &protocol.NodeExecutionInput{
		NodeID:     "delay-1",
		NodeConfig: map[string]any{"durationMs": 20},
		InputData:  map[string]any{"a": 1},
	})
	require.NoError(t, err)
	require.True(t, output.Success)
	assert.GreaterOrEqual(t, time.Since(started), 20*time.Millisecond)

	result, ok := output.Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, result["a"])
	assert.Equal(t, int64(20), result["delayedMs"])
}

func TestProcessor_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	output, err := delay.NewProcessor().Execute(ctx, &protocol.NodeExecutionInput{
		NodeID:     "delay-1",
		NodeConfig: map[string]any{"durationMs": 60000},
	})
	require.NoError(t, err)
	assert.False(t, output.Success)
	assert.Equal(t, delay.ErrorCodeCancelled, output.Error.Code)
}

func TestProcessor_Validate(t *testing.T) {
	t.Parallel()

	processor := delay.NewProcessor()

	assert.True(t, processor.Validate(map[string]any{"durationMs": 1000}).Valid)
	assert.False(t, processor.Validate(map[string]any{"durationMs": -1}).Valid)
	assert.False(t, processor.Validate(map[string]any{"durationMs": 600000}).Valid)
	assert.False(t, processor.Validate(map[string]any{}).Valid)
}
