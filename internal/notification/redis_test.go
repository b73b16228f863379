package notification

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"production-tracker-backend/config"
	"production-tracker-backend/internal/logger"
)

func TestNewRedisBusValidation(t *testing.T) {
	_, err := NewRedisBus(config.RedisConfig{Addr: "localhost:6379"}, nil)
	assert.ErrorContains(t, err, "logger required")

	_, err = NewRedisBus(config.RedisConfig{Addr: "  "}, logger.Nop())
	assert.ErrorContains(t, err, "missing redis.addr")

	// Nothing listens on port 1, so the ping fails fast.
	_, err = NewRedisBus(config.RedisConfig{Addr: "127.0.0.1:1", Channel: "movements"}, logger.Nop())
	assert.ErrorContains(t, err, "redis ping")
}

func TestRedisBusNotInitialized(t *testing.T) {
	var bus *RedisBus
	require.Error(t, bus.Subscribe(context.Background(), func(Event) {}))
	assert.NoError(t, bus.Close())
}
