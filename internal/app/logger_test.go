package app

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLoggerLevelByEnvironment(t *testing.T) {
	prod := NewLogger(&Config{AppEnv: "production", LogFormat: "json"})
	assert.False(t, prod.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, prod.Enabled(context.Background(), slog.LevelInfo))

	dev := NewLogger(&Config{AppEnv: "development"})
	assert.True(t, dev.Enabled(context.Background(), slog.LevelDebug))
}
