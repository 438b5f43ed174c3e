package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 50, cfg.Queue.Workers)
	assert.Equal(t, 5*time.Minute, cfg.Queue.StaleClaim)

	// Per-priority retry budgets.
	assert.Equal(t, 5, cfg.Queue.High.MaxAttempts)
	assert.Equal(t, 1*time.Second, cfg.Queue.High.InitialBackoff)
	assert.Equal(t, 3, cfg.Queue.Normal.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Queue.Normal.InitialBackoff)
	assert.Equal(t, 2, cfg.Queue.Low.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Queue.Low.InitialBackoff)

	assert.Equal(t, 100, cfg.Bulk.BatchSize)
	assert.Equal(t, 5, cfg.Bulk.MaxConcurrency)
	assert.Equal(t, 30*24*time.Hour, cfg.Retention.NotificationTTL)
}

func TestPolicyLookup(t *testing.T) {
	q := QueueConfig{
		High:   PriorityPolicy{MaxAttempts: 5, InitialBackoff: time.Second},
		Normal: PriorityPolicy{MaxAttempts: 3, InitialBackoff: 2 * time.Second},
		Low:    PriorityPolicy{MaxAttempts: 2, InitialBackoff: 5 * time.Second},
	}

	assert.Equal(t, q.High, q.Policy("high"))
	assert.Equal(t, q.Low, q.Policy("low"))
	assert.Equal(t, q.Normal, q.Policy("normal"))
	assert.Equal(t, q.Normal, q.Policy("anything-else"))
}
