package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/eldstar/server/internal/dispatcher"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	return entry
}

func TestDispatcherLogger_Levels(t *testing.T) {
	tests := []struct {
		name  string
		log   func(*DispatcherLogger)
		level string
		msg   string
	}{
		{"debug", func(l *DispatcherLogger) { l.Debug("handling event", "command", "snapshot", "frame", 42) }, "debug", "handling event"},
		{"info", func(l *DispatcherLogger) { l.Info("info message", "status", "ok") }, "info", "info message"},
		{"error", func(l *DispatcherLogger) { l.Error("event failed", "code", 500) }, "error", "event failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			dl := NewDispatcherLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))
			tt.log(dl)

			entry := decodeLine(t, &buf)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, tt.msg, entry["message"])
		})
	}
}

func TestDispatcherLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf))

	dl.Info("event complete", "command", "session:end", "session", uint64(3), 7, "ignored")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "session:end", entry["command"])
	assert.Equal(t, float64(3), entry["session"]) // JSON numbers are float64
	assert.Equal(t, "dispatcher", entry["component"])
	assert.Len(t, entry, 5, "non-string keys are dropped")
}

func TestDispatcherLogger_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf).Level(zerolog.InfoLevel))

	dl.Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestDispatcherLogger_ImplementsInterface(t *testing.T) {
	var _ dispatcher.Logger = NewDispatcherLogger(zerolog.Nop())
}

func TestDispatcherLogger_OddLengthDropsTrailingKey(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf))

	dl.Error("event failed", "frame", 12, "dangling")

	entry := decodeLine(t, &buf)
	assert.Equal(t, float64(12), entry["frame"])
	assert.NotContains(t, entry, "dangling")
}
