package reactor

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogger_RespectsLevel(t *testing.T) {
	logger := NewDefaultLogger(LevelWarn)
	assert.False(t, logger.IsEnabled(LevelDebug))
	assert.False(t, logger.IsEnabled(LevelInfo))
	assert.True(t, logger.IsEnabled(LevelWarn))
	assert.True(t, logger.IsEnabled(LevelError))
}

func TestDefaultLogger_WritesFormattedLine(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "reactor-log-*.txt")
	require.NoError(t, err)
	defer f.Close()

	logger := NewDefaultLogger(LevelInfo)
	logger.Out = f
	logger.Log(LogEntry{Level: LevelInfo, Category: "test", Message: "hello"})

	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), "INFO")
}

func TestSetLogger_GlobalFallback(t *testing.T) {
	original := getGlobalLogger()
	defer SetLogger(original)

	logger := NewDefaultLogger(LevelDebug)
	SetLogger(logger)
	assert.Equal(t, Logger(logger), getGlobalLogger())
}

func TestNoOpLogger_NeverEnabled(t *testing.T) {
	var l noOpLogger
	assert.False(t, l.IsEnabled(LevelError))
}
