package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/try-flowforge/backend/pkg/config"
	"github.com/try-flowforge/backend/pkg/queue"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.MaxSteps)
	assert.Equal(t, time.Hour, cfg.SubscriptionTokenTTL)

	for _, name := range queue.Names {
		options := cfg.Queue(name)
		assert.GreaterOrEqual(t, options.Concurrency, 1, name)
		assert.GreaterOrEqual(t, options.Attempts, 1, name)
	}
}

func TestLoad_MergesFileOverDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "flowforge.yaml")
	content := `
max_steps: 25
queues:
  llm-calls:
    concurrency: 2
    rate_limit_max: 10
  workflow-execution:
    job_timeout: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.MaxSteps)
	assert.Equal(t, time.Minute, cfg.WalletLockTTL)

	llm := cfg.Queue(queue.LLMCalls)
	assert.Equal(t, 2, llm.Concurrency)
	assert.Equal(t, 10, llm.RateLimitMax)
	assert.Equal(t, time.Minute, llm.RateLimitWindow)
	assert.Equal(t, 3, llm.Attempts)

	workflows := cfg.Queue(queue.WorkflowExecution)
	assert.Equal(t, 30*time.Second, workflows.JobTimeout)
	assert.Equal(t, 5, workflows.Concurrency)

	assert.Equal(t, 3, cfg.Queue(queue.SwapExecution).Concurrency)
}

func TestLoad_InvalidFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_steps: ["), 0o600))

	_, err := config.Load(path)
	assert.Error(t, err)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.MaxSteps = 0

	assert.Error(t, cfg.Validate())
}
