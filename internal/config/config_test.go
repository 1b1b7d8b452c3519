package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.ShutdownGracePeriod)
	assert.Equal(t, 20, cfg.Hub.TickHz)
	assert.Equal(t, 20*time.Millisecond, cfg.Hub.Grace)
	assert.Equal(t, time.Second, cfg.Hub.PresenceInterval)
	assert.Equal(t, 8, cfg.Edge.ShardCount)
	assert.True(t, cfg.Standalone())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	body := `
log_level: debug
hub:
  tick_hz: 30
  grace: 5ms
edge:
  hub_url: http://hub:8081/
  shard_count: 16
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("RELAY_EDGE_SHARD_COUNT", "32")
	t.Setenv("RELAY_HUB_PRESENCE_INTERVAL", "2s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 30, cfg.Hub.TickHz)
	assert.Equal(t, 5*time.Millisecond, cfg.Hub.Grace)
	assert.Equal(t, 2*time.Second, cfg.Hub.PresenceInterval)
	assert.Equal(t, 32, cfg.Edge.ShardCount)
	assert.Equal(t, "http://hub:8081", cfg.Edge.HubURL)
	assert.False(t, cfg.Standalone())
}

func TestLoadInvalidDuration(t *testing.T) {
	t.Setenv("RELAY_HUB_GRACE", "soon")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestClampTickHz(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 20},
		{-5, 1},
		{1, 1},
		{45, 45},
		{60, 60},
		{240, 60},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampTickHz(tt.in), "ClampTickHz(%d)", tt.in)
	}
}

func TestNormalizeNonPositiveShardCount(t *testing.T) {
	t.Setenv("RELAY_EDGE_SHARD_COUNT", "0")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Edge.ShardCount)
}
