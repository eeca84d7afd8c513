package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("debug"))
	assert.Equal(t, LogLevelWarn, ParseLevel("warn"))
	assert.Equal(t, LogLevelError, ParseLevel("error"))
	assert.Equal(t, LogLevelInfo, ParseLevel("info"))
	assert.Equal(t, LogLevelInfo, ParseLevel("bogus"))
}

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: LogLevelInfo, Format: "json", Output: &buf})

	l.Debug("dropped")
	l.Info("kept", "key", "value")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "kept", record["msg"])
	assert.Equal(t, "value", record["key"])
}

func TestNewTextLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: LogLevelDebug, Format: "text", Output: &buf})

	l.Debug("tracing", "step", 1)
	assert.Contains(t, buf.String(), "tracing")
	assert.Contains(t, buf.String(), "step=1")
}

func TestLogToolCall(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: LogLevelDebug, Format: "json", Output: &buf})

	LogToolCall(l, "place_hold", 5*time.Millisecond, nil)
	LogToolCall(l, "place_hold", 2*time.Millisecond, errors.New("conflict"))

	out := buf.String()
	assert.Contains(t, out, "tool.call.completed")
	assert.Contains(t, out, "tool.call.failed")
	assert.Contains(t, out, "conflict")
}

func TestLogExplainerCallFailureIsWarn(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: LogLevelDebug, Format: "json", Output: &buf})

	LogExplainerCall(l, "openai", time.Second, errors.New("timeout"))

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record))
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "explainer.call.fallback", record["msg"])
}