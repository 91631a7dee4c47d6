package logger

import (
	"testing"

	"quiz-reward-service/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeLevels(t *testing.T) {
	require.NoError(t, Initialize(config.LoggerConfig{Level: "debug", Env: "production"}))
	assert.True(t, Get().Core().Enabled(-1))

	require.NoError(t, Initialize(config.LoggerConfig{}))
	assert.False(t, Get().Core().Enabled(-1))

	assert.Error(t, Initialize(config.LoggerConfig{Level: "loud"}))
}
