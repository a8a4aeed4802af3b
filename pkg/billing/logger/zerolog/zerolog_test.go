package zerolog

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/gobilling/pkg/billing"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		level string
		log   func(l *Logger)
	}{
		{"debug", func(l *Logger) { l.Debug("msg") }},
		{"info", func(l *Logger) { l.Info("msg") }},
		{"warn", func(l *Logger) { l.Warn("msg") }},
		{"error", func(l *Logger) { l.Error("msg") }},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(NewLogger(zerolog.New(&buf)))

			entry := decode(t, &buf)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, "msg", entry["message"])
		})
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(zerolog.New(&buf).Level(zerolog.WarnLevel))

	logger.Debug("debug message")
	logger.Info("info message")
	assert.Zero(t, buf.Len())

	logger.Warn("warn message")
	assert.NotZero(t, buf.Len())
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(zerolog.New(&buf))

	logger.Error("upgrade failed",
		billing.Field{Key: "user_id", Value: "u1"},
		billing.Field{Key: "attempts", Value: 2},
		billing.Field{Key: "error", Value: errors.New("card declined")},
		billing.Field{Key: "elapsed", Value: 1500 * time.Millisecond},
	)

	entry := decode(t, &buf)
	assert.Equal(t, "u1", entry["user_id"])
	assert.Equal(t, float64(2), entry["attempts"])
	assert.Equal(t, "card declined", entry["error"])
	assert.Equal(t, float64(1500), entry["elapsed"])
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(zerolog.New(&buf)).With(billing.Field{Key: "request_id", Value: "req-1"})

	logger.Info("handled", billing.Field{Key: "route", Value: "/billing/upgrade"})

	entry := decode(t, &buf)
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "/billing/upgrade", entry["route"])
}
