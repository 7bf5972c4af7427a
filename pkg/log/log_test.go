package log_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/try-flowforge/backend/pkg/log"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelDebug, log.ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, log.ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, log.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, log.ParseLevel("unknown"))
}

func TestNew_JSONFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := log.New(&buf, "info", "json")
	logger.Debug("hidden")
	logger.Info("visible", "executionId", "exec-1")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"executionId":"exec-1"`)
}
