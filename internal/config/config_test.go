package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("COLLAB_CONFLICT_POLICY", "")
	t.Setenv("COLLAB_MAX_LAG", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(200), cfg.MaxLag)
	assert.Equal(t, uint64(20), cfg.ConflictLag)
	assert.Equal(t, "annotate", cfg.ConflictPolicy)
	assert.Equal(t, 5*time.Second, cfg.LockTimeout)
	assert.Equal(t, time.Duration(0), cfg.SessionTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("COLLAB_MAX_LAG", "50")
	t.Setenv("COLLAB_CONFLICT_LAG", "5")
	t.Setenv("COLLAB_LOCK_TIMEOUT", "250ms")
	t.Setenv("COLLAB_SESSION_TTL", "3600")
	t.Setenv("COLLAB_CONFLICT_POLICY", "reject")
	t.Setenv("WS_OPS_PER_SECOND", "2.5")
	t.Setenv("DB_LOG_QUERIES", "true")
	t.Setenv("FANOUT_WORKERS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(50), cfg.MaxLag)
	assert.Equal(t, uint64(5), cfg.ConflictLag)
	assert.Equal(t, 250*time.Millisecond, cfg.LockTimeout)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, "reject", cfg.ConflictPolicy)
	assert.Equal(t, 2.5, cfg.WSOpsPerSecond)
	assert.True(t, cfg.DBLogQueries)
	assert.Equal(t, 4, cfg.FanoutWorkers)
}

func TestLoadRejectsBadSettings(t *testing.T) {
	t.Setenv("COLLAB_CONFLICT_POLICY", "merge")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("COLLAB_CONFLICT_POLICY", "annotate")
	t.Setenv("COLLAB_MAX_LAG", "10")
	t.Setenv("COLLAB_CONFLICT_LAG", "11")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("COLLAB_CONFLICT_LAG", "5")
	t.Setenv("TRACE_SAMPLE_RATIO", "1.5")
	_, err = Load()
	assert.Error(t, err)
}
