package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFromMap(map[string]string{"ARENA_JWT_SECRET": "s3cret"})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, StorageTypeMemory, cfg.StorageType)
	assert.Equal(t, 5*time.Second, cfg.AuthGrace)
	assert.Equal(t, 300*time.Second, cfg.DefaultMaxDuration)
	assert.Equal(t, time.Second, cfg.SweepInterval)
	assert.Equal(t, 16, cfg.WorkerPoolSize)
	assert.Empty(t, cfg.AllowedOrigins)

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadFromMap(map[string]string{
		"ARENA_JWT_SECRET":      "s3cret",
		"ARENA_STORAGE_TYPE":    "Redis",
		"ARENA_REDIS_URL":       "redis://localhost:6379/0",
		"ARENA_LOG_LEVEL":       "debug",
		"ARENA_ALLOWED_ORIGINS": "https://a.example,https://b.example",
		"ARENA_IDLE_TIMEOUT":    "90s",
	})
	require.NoError(t, err)

	assert.Equal(t, StorageTypeRedis, cfg.StorageType)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 90*time.Second, cfg.IdleTimeout)
	level, _ := cfg.SlogLevel()
	assert.Equal(t, slog.LevelDebug, level)
}

func TestValidateReportsAllProblems(t *testing.T) {
	_, err := LoadFromMap(map[string]string{
		"ARENA_STORAGE_TYPE":     "redis",
		"ARENA_LOG_LEVEL":        "chatty",
		"ARENA_WORKER_POOL_SIZE": "0",
	})
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "ARENA_REDIS_URL is required")
	assert.Contains(t, msg, "ARENA_LOG_LEVEL")
	assert.Contains(t, msg, "ARENA_JWT_SECRET is required")
	assert.Contains(t, msg, "ARENA_WORKER_POOL_SIZE")
}

func TestUnknownStorageType(t *testing.T) {
	_, err := LoadFromMap(map[string]string{"ARENA_JWT_SECRET": "x", "ARENA_STORAGE_TYPE": "postgres"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ARENA_STORAGE_TYPE")
}

func TestBadDurationFailsToParse(t *testing.T) {
	_, err := LoadFromMap(map[string]string{"ARENA_JWT_SECRET": "x", "ARENA_AUTH_GRACE": "soon"})
	require.Error(t, err)
}

func TestAnalysisURLMustBeAbsolute(t *testing.T) {
	_, err := LoadFromMap(map[string]string{"ARENA_JWT_SECRET": "x", "ARENA_ANALYSIS_URL": "/relative"})
	require.Error(t, err)

	cfg, err := LoadFromMap(map[string]string{"ARENA_JWT_SECRET": "x", "ARENA_ANALYSIS_URL": "http://analysis:9000/analyze"})
	require.NoError(t, err)
	assert.Equal(t, "http://analysis:9000/analyze", cfg.AnalysisURL)
}
