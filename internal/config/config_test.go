package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, "event_stream", cfg.Stream.Key)
	assert.Equal(t, "group1", cfg.Stream.Group)
	assert.Equal(t, "consumer1", cfg.Stream.Consumer)
	assert.Equal(t, time.Second, cfg.Stream.Block())
	assert.Equal(t, 300*time.Second, cfg.Tripwire.Window())
	assert.Equal(t, 0.05, cfg.Tripwire.Threshold)
	assert.True(t, cfg.Lifecycle.Flush)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
redis:
  host: redis.internal
  port: 6380
  user_db: 4
tripwire:
  window_seconds: 60
  threshold: 0.25
lifecycle:
  flush: false
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr())
	assert.Equal(t, 4, cfg.Redis.UserDB)
	assert.Equal(t, 60*time.Second, cfg.Tripwire.Window())
	assert.Equal(t, 0.25, cfg.Tripwire.Threshold)
	assert.False(t, cfg.Lifecycle.Flush)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("REDIS_HOST", "env-host")
	t.Setenv("REDIS_PORT", "7000")
	t.Setenv("CONSUMER_NAME", "consumer-b")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-host:7000", cfg.Redis.Addr())
	assert.Equal(t, "consumer-b", cfg.Stream.Consumer)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}
