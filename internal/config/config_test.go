package config_test

import (
	"testing"

	"github.com/campaignly/learning-engine/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := config.Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 3, cfg.Learning.ConflictRetries)
	assert.False(t, cfg.Events.Enabled)
	assert.Empty(t, cfg.Auth.APIKeys)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LEARNING_PORT", "9090")
	t.Setenv("LEARNING_STORE_DRIVER", "sqlite")
	t.Setenv("LEARNING_SQLITE_PATH", "/tmp/learning-test.db")
	t.Setenv("LEARNING_API_KEYS", " key-1 , ,key-2")
	t.Setenv("NATS_ENABLED", "true")
	t.Setenv("LEARNING_CONFLICT_RETRIES", "5")

	cfg := config.Load()

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/tmp/learning-test.db", cfg.Store.SQLitePath)
	assert.Equal(t, []string{"key-1", "key-2"}, cfg.Auth.APIKeys)
	assert.True(t, cfg.Events.Enabled)
	assert.Equal(t, 5, cfg.Learning.ConflictRetries)
}
