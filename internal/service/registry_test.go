package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesbridge/internal/model"
	"salesbridge/internal/wa"
)

func TestGetOrCreateConcurrentSingleHandle(t *testing.T) {
	env := newTestEnv(Options{})

	const n = 16
	var wg sync.WaitGroup
	views := make([]model.SessionView, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			view, err := env.reg.GetOrCreate(context.Background(), "tenant-1", "", false)
			assert.NoError(t, err)
			views[i] = view
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, env.factory.createdCount(), "concurrent initializes must share one handle")
	for i := 0; i < n; i++ {
		assert.Equal(t, "tenant-1", views[i].TenantID)
		assert.True(t, views[i].Status.Pairing())
	}
}

// Snapshots handed out by the registry must stay readable while the pairing
// goroutines keep mutating the record underneath. Run with -race.
func TestSnapshotsSafeDuringPairing(t *testing.T) {
	env := newTestEnv(Options{})

	_, err := env.reg.GetOrCreate(context.Background(), "tenant-1", "", false)
	require.NoError(t, err)
	handle := env.factory.lastHandle()
	require.NotNil(t, handle)

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				if view, ok := env.reg.ViewOf("tenant-1"); ok {
					_ = view.PairingCode
					_ = view.Status
				}
				view, _, err := env.reg.Status("tenant-1")
				if err == nil {
					_ = view.PairingCode
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		handle.qrItems <- wa.QREvent{Event: "code", Code: "QR-ROT"}
	}
	require.True(t, waitFor(time.Second, func() bool {
		view, ok := env.reg.ViewOf("tenant-1")
		return ok && view.PairingCode == "QR-ROT"
	}))

	close(done)
	wg.Wait()
}

func TestGetOrCreateWhileConnectedReturnsAlreadyConnected(t *testing.T) {
	env := newTestEnv(Options{})
	env.connect(t, "tenant-1")

	view, err := env.reg.GetOrCreate(context.Background(), "tenant-1", "", false)
	require.ErrorIs(t, err, ErrAlreadyConnected)
	assert.Equal(t, model.StatusConnected, view.Status)
	assert.Equal(t, 1, env.factory.createdCount(), "no second handle for a connected tenant")
}

func TestConnectedInvariants(t *testing.T) {
	env := newTestEnv(Options{})
	env.connect(t, "tenant-1")

	view, ok := env.reg.ViewOf("tenant-1")
	require.True(t, ok)
	assert.Equal(t, model.StatusConnected, view.Status)
	assert.NotEmpty(t, view.PhoneNumber, "connected implies a known phone number")
	assert.Empty(t, view.PairingCode, "pairing code is cleared on connect")

	handle, err := env.reg.connectedHandle("tenant-1")
	require.NoError(t, err)
	assert.NotNil(t, handle, "connected implies a live handle")
}

func TestRemoveReleasesHandleAndRecord(t *testing.T) {
	env := newTestEnv(Options{})
	handle := env.connect(t, "tenant-1")

	err := env.reg.Remove(context.Background(), "tenant-1")
	require.NoError(t, err)

	_, ok := env.reg.ViewOf("tenant-1")
	assert.False(t, ok, "record must be gone after remove")
	assert.True(t, handle.loggedOut, "remove performs a cooperative logout")
	assert.True(t, handle.released(), "remove releases the handle")
	assert.Equal(t, 1, env.factory.deleted, "device store row is dropped")
	assert.Equal(t, "logged_out", env.conns.status("tenant-1"))
}

func TestRemoveUnknownTenant(t *testing.T) {
	env := newTestEnv(Options{})

	err := env.reg.Remove(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

// Remove must never let the record vanish while its handle is still live:
// the record stays observable (detached, disconnected) until the handle
// release returned, and only then leaves the map.
func TestRemoveKeepsRecordUntilHandleReleased(t *testing.T) {
	env := newTestEnv(Options{})
	handle := env.connect(t, "tenant-1")

	gate := make(chan struct{})
	handle.mu.Lock()
	handle.disconnectGate = gate
	handle.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- env.reg.Remove(context.Background(), "tenant-1") }()

	require.True(t, waitFor(time.Second, func() bool {
		view, ok := env.reg.ViewOf("tenant-1")
		return ok && view.Status == model.StatusDisconnected
	}), "record stays observable while the handle release is in flight")
	assert.False(t, handle.released())

	close(gate)
	require.NoError(t, <-done)

	_, ok := env.reg.ViewOf("tenant-1")
	assert.False(t, ok, "record leaves the map after the release completed")
	assert.True(t, handle.released())
}

// Same ordering for reaper evictions.
func TestEvictKeepsRecordUntilHandleReleased(t *testing.T) {
	env := newTestEnv(Options{})
	handle := env.connect(t, "tenant-1")

	gate := make(chan struct{})
	handle.mu.Lock()
	handle.disconnectGate = gate
	handle.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		env.reg.evict("tenant-1", "idle")
		close(finished)
	}()

	require.True(t, waitFor(time.Second, func() bool {
		view, ok := env.reg.ViewOf("tenant-1")
		return ok && view.Status == model.StatusDisconnected
	}))
	assert.False(t, handle.released())

	close(gate)
	<-finished

	_, ok := env.reg.ViewOf("tenant-1")
	assert.False(t, ok)
	assert.True(t, handle.released())
}

func TestListConnectedOnlyReportsConnected(t *testing.T) {
	env := newTestEnv(Options{})
	env.connect(t, "tenant-a")
	env.connect(t, "tenant-b")

	// tenant-c is still pairing.
	_, err := env.reg.GetOrCreate(context.Background(), "tenant-c", "", false)
	require.NoError(t, err)

	list := env.reg.ListConnected()
	assert.Len(t, list, 2)
	for _, s := range list {
		assert.NotEqual(t, "tenant-c", s.TenantID)
		assert.NotEmpty(t, s.PhoneNumber)
	}
}

func TestTouchUpdatesHeartbeat(t *testing.T) {
	env := newTestEnv(Options{})
	env.connect(t, "tenant-1")

	view, _ := env.reg.ViewOf("tenant-1")
	before := view.LastHeartbeatAt

	require.NoError(t, env.reg.Touch("tenant-1"))

	view, _ = env.reg.ViewOf("tenant-1")
	assert.False(t, view.LastHeartbeatAt.Before(before))

	assert.ErrorIs(t, env.reg.Touch("ghost"), ErrSessionNotFound)
}

func TestStatusPropagatesStoreFailure(t *testing.T) {
	env := newTestEnv(Options{})
	env.conns.getErr = errors.New("db offline")

	_, _, err := env.reg.Status("tenant-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionNotFound, "a store outage is not a missing session")
	assert.Contains(t, err.Error(), "db offline")
}

func TestRemoteLogoutReleasesEverything(t *testing.T) {
	env := newTestEnv(Options{})
	handle := env.connect(t, "tenant-1")

	env.reg.handleEvent("tenant-1", eventLoggedOut())

	_, ok := env.reg.ViewOf("tenant-1")
	assert.False(t, ok)
	assert.True(t, handle.released())
	assert.Equal(t, 1, env.factory.deleted)
	assert.Equal(t, "logged_out", env.conns.status("tenant-1"))
}

func TestUnexpectedDisconnectLeavesTombstone(t *testing.T) {
	env := newTestEnv(Options{})
	handle := env.connect(t, "tenant-1")

	env.reg.handleEvent("tenant-1", eventDisconnected())

	view, ok := env.reg.ViewOf("tenant-1")
	require.True(t, ok, "tombstone stays for status polls")
	assert.Equal(t, model.StatusDisconnected, view.Status)
	assert.True(t, handle.released())

	_, err := env.reg.connectedHandle("tenant-1")
	assert.ErrorIs(t, err, ErrNotConnected, "handle released on disconnect")

	// A fresh initialize replaces the tombstone.
	fresh, err := env.reg.GetOrCreate(context.Background(), "tenant-1", "", true)
	require.NoError(t, err)
	assert.True(t, fresh.Status.Pairing())
}
