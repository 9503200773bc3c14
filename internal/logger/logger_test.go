package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext(t *testing.T) {
	t.Run("Should return logger from context when present", func(t *testing.T) {
		expected := NewLogger(TestConfig())
		ctx := ContextWithLogger(t.Context(), expected)
		assert.Equal(t, expected, FromContext(ctx))
	})

	t.Run("Should fall back to a default logger", func(t *testing.T) {
		l := FromContext(t.Context())
		require.NotNil(t, l)
	})

	t.Run("Should fall back when the context value has the wrong type", func(t *testing.T) {
		ctx := context.WithValue(t.Context(), ctxKey{}, "not a logger")
		require.NotNil(t, FromContext(ctx))
	})
}

func TestNewLogger(t *testing.T) {
	t.Run("Should emit JSON lines with key values", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewLogger(&Config{Level: InfoLevel, Output: &buf, JSON: true})
		l.With("component", "ingest").Info("chunked document", "chunks", 3)

		var entry map[string]any
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
		assert.Equal(t, "chunked document", entry["msg"])
		assert.Equal(t, "ingest", entry["component"])
		assert.EqualValues(t, 3, entry["chunks"])
	})

	t.Run("Should drop messages below the configured level", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewLogger(&Config{Level: WarnLevel, Output: &buf})
		l.Info("hidden")
		l.Warn("shown")
		assert.NotContains(t, buf.String(), "hidden")
		assert.True(t, strings.Contains(buf.String(), "shown"))
	})

	t.Run("Should stay silent with the test config", func(t *testing.T) {
		l := NewLogger(TestConfig())
		l.Error("nothing to see")
	})
}
