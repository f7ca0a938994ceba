package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pricegrid/pricegrid/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerSelectsHandler(t *testing.T) {
	pretty := NewLogger(config.NewAppConfigWithOptions(config.WithLogFormat(config.LogFormatPretty)))
	require.NotNil(t, pretty.Slog())
	_, ok := pretty.Handler().(*TerminalHandler)
	assert.True(t, ok)

	jsonLogger := NewLogger(config.NewAppConfigWithOptions(config.WithLogFormat(config.LogFormatJSON)))
	_, ok = jsonLogger.Handler().(*TerminalHandler)
	assert.False(t, ok)
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, config.LogFormatJSON, "DEBUG")

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	for _, line := range lines {
		var data map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &data))
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, config.LogFormatJSON, "WARN")

	logger.Info("dropped")
	logger.Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, config.LogFormatJSON, "INFO")

	logger.With("component", "reconciler").Info("batch written")

	var data map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &data))
	assert.Equal(t, "reconciler", data["component"])
}

func TestLoggerWithJobAndWorker(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, config.LogFormatJSON, "INFO")

	logger.WithWorker("host-1-0").WithJob(42, "feed.json").Info("job started")

	var data map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &data))
	assert.Equal(t, "host-1-0", data["worker_id"])
	assert.EqualValues(t, 42, data["job_id"])
	assert.Equal(t, "feed.json", data["kind"])
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"DEBUG":   "DEBUG",
		"warn":    "WARN",
		"WARNING": "WARN",
		"error":   "ERROR",
		"bogus":   "INFO",
		"":        "INFO",
	}
	for input, want := range cases {
		assert.Equal(t, want, parseLevel(input).String(), "input %q", input)
	}
}
