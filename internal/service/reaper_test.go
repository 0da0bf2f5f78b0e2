package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesbridge/internal/model"
)

func TestReaperEvictsExpiredPairing(t *testing.T) {
	env := newTestEnv(Options{PairingTTL: 20 * time.Millisecond, ConnectedTTL: time.Hour})

	_, err := env.reg.GetOrCreate(context.Background(), "tenant-1", "", false)
	require.NoError(t, err)
	handle := env.factory.lastHandle()
	require.NotNil(t, handle)

	time.Sleep(30 * time.Millisecond)
	NewReaper(env.reg, time.Minute).Sweep()

	_, ok := env.reg.ViewOf("tenant-1")
	assert.False(t, ok, "expired pairing attempt is evicted")
	assert.True(t, handle.released(), "handle released before the record disappears")
	assert.Equal(t, "stale", env.conns.status("tenant-1"))
}

func TestReaperEvictsIdleConnected(t *testing.T) {
	env := newTestEnv(Options{PairingTTL: time.Hour, ConnectedTTL: 20 * time.Millisecond})
	handle := env.connect(t, "tenant-1")

	time.Sleep(30 * time.Millisecond)
	NewReaper(env.reg, time.Minute).Sweep()

	_, ok := env.reg.ViewOf("tenant-1")
	assert.False(t, ok)
	assert.True(t, handle.released())
}

func TestReaperSparesHealthySessions(t *testing.T) {
	env := newTestEnv(Options{PairingTTL: time.Hour, ConnectedTTL: time.Hour})
	env.connect(t, "tenant-live")

	_, err := env.reg.GetOrCreate(context.Background(), "tenant-pairing", "", false)
	require.NoError(t, err)

	NewReaper(env.reg, time.Minute).Sweep()

	_, ok := env.reg.ViewOf("tenant-live")
	assert.True(t, ok)
	_, ok = env.reg.ViewOf("tenant-pairing")
	assert.True(t, ok)
}

func TestHeartbeatDefersEviction(t *testing.T) {
	env := newTestEnv(Options{PairingTTL: time.Hour, ConnectedTTL: 50 * time.Millisecond})
	env.connect(t, "tenant-1")

	reaper := NewReaper(env.reg, time.Minute)

	// Keep touching past several TTL windows.
	for i := 0; i < 3; i++ {
		time.Sleep(30 * time.Millisecond)
		require.NoError(t, env.reg.Touch("tenant-1"))
		reaper.Sweep()
	}

	_, ok := env.reg.ViewOf("tenant-1")
	assert.True(t, ok, "heartbeats keep the session alive")
}

func TestReinitializeAfterEviction(t *testing.T) {
	env := newTestEnv(Options{PairingTTL: 20 * time.Millisecond, ConnectedTTL: time.Hour})

	_, err := env.reg.GetOrCreate(context.Background(), "tenant-1", "", false)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	NewReaper(env.reg, time.Minute).Sweep()

	view, err := env.reg.GetOrCreate(context.Background(), "tenant-1", "", false)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConnecting, view.Status)
	assert.Equal(t, 2, env.factory.createdCount(), "eviction then re-initialize builds a fresh handle")
}
