package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   LogLevelDebug,
		"INFO":    LogLevelInfo,
		"":        LogLevelInfo,
		"warning": LogLevelWarn,
		"error":   LogLevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewLogger_JSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: "json", Output: &buf, Component: "supervisor"})
	l.Info("supervisor.round.start", "round", 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "supervisor.round.start", rec["msg"])
	assert.Equal(t, "supervisor", rec["component"])
	assert.Equal(t, float64(1), rec["round"])
}

func TestNewLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelWarn, Format: "text", Output: &buf})
	l.Info("dropped")
	assert.Empty(t, buf.String())
	l.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestLogrusAdapter_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogrusLogger(LogLevelInfo, &buf)
	With(l, "workflow_id", "wf-1").Info("workflow.complete", "rounds", 2, "dangling")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "workflow.complete", rec["message"])
	assert.Equal(t, "wf-1", rec["workflow_id"])
	assert.Equal(t, float64(2), rec["rounds"])
	assert.Equal(t, "dangling", rec["!BADKEY"])
}

type recordingLogger struct {
	NoOpLogger
	args []any
}

func (r *recordingLogger) Info(_ string, args ...any) { r.args = args }

func TestWith_WrapsForeignLogger(t *testing.T) {
	rec := &recordingLogger{}
	With(rec, "a", 1).Info("msg", "b", 2)
	assert.Equal(t, []any{"a", 1, "b", 2}, rec.args)

	assert.Equal(t, NoOpLogger{}, With(nil, "a", 1))
}
