package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWithPath(t *testing.T) {
	t.Run("stderr by default", func(t *testing.T) {
		result := NewLoggerWithPath(Config{Level: "debug"})
		assert.False(t, result.UsingFile)
		assert.Equal(t, zerolog.DebugLevel, result.Logger.GetLevel())
		require.NoError(t, result.Close())
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		result := NewLoggerWithPath(Config{Level: "loud"})
		assert.Equal(t, zerolog.InfoLevel, result.Logger.GetLevel())
	})

	t.Run("file output", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "finsync.log")
		result := NewLoggerWithPath(Config{Level: "info", Output: OutputFile, File: path})
		require.True(t, result.UsingFile)
		result.Logger.Info().Msg("hello")
		require.NoError(t, result.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"message":"hello"`)
	})

	t.Run("unwritable file falls back", func(t *testing.T) {
		dir := t.TempDir()
		blocker := filepath.Join(dir, "blocker")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

		result := NewLoggerWithPath(Config{Output: OutputFile, File: filepath.Join(blocker, "x.log")})
		assert.False(t, result.UsingFile)
		assert.True(t, result.FallbackUsed)
		assert.NotEmpty(t, result.FallbackReason)
	})
}

func TestComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	log := ComponentLogger(base, "cache")
	log.Info().Msg("x")
	assert.Contains(t, buf.String(), `"component":"cache"`)
}

func TestTraceID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, TraceIDFromContext(ctx))

	generated := GetOrGenerateTraceID(ctx)
	assert.Len(t, generated, 26)

	ctx = ContextWithTraceID(ctx, "abc")
	assert.Equal(t, "abc", GetOrGenerateTraceID(ctx))

	a, b := GenerateTraceID(), GenerateTraceID()
	assert.Less(t, a, b, "trace IDs are monotonic")
}
