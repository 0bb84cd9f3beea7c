package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolveLoopOptions_Defaults(t *testing.T) {
	cfg := resolveLoopOptions(nil)
	assert.Equal(t, 10*time.Second, cfg.pollTimeout)
	assert.Nil(t, cfg.logger)
}

func TestResolveLoopOptions_WithOverrides(t *testing.T) {
	cfg := resolveLoopOptions([]LoopOption{WithPollTimeout(5 * time.Second)})
	assert.Equal(t, 5*time.Second, cfg.pollTimeout)
}

func TestResolveConnectorOptions_Defaults(t *testing.T) {
	cfg := resolveConnectorOptions(nil)
	assert.Equal(t, 500*time.Millisecond, cfg.initialRetryDelay)
	assert.Equal(t, 30*time.Second, cfg.maxRetryDelay)
}

func TestResolveConnectorOptions_WithOverrides(t *testing.T) {
	cfg := resolveConnectorOptions([]ConnectorOption{
		WithInitialRetryDelay(100 * time.Millisecond),
		WithMaxRetryDelay(2 * time.Second),
	})
	assert.Equal(t, 100*time.Millisecond, cfg.initialRetryDelay)
	assert.Equal(t, 2*time.Second, cfg.maxRetryDelay)
}

func TestWithLogger_AppliesToAllComponentKinds(t *testing.T) {
	logger := NewDefaultLogger(LevelInfo)
	opt := WithLogger(logger)

	loopCfg := resolveLoopOptions([]LoopOption{opt})
	assert.Equal(t, logger, loopCfg.logger)

	serverCfg := resolveServerOptions([]ServerOption{opt})
	assert.Equal(t, logger, serverCfg.logger)

	connCfg := resolveConnectorOptions([]ConnectorOption{opt})
	assert.Equal(t, logger, connCfg.logger)
}
