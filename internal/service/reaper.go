package service

import (
	"context"
	"log"
	"time"

	"salesbridge/internal/model"
)

// Reaper periodically evicts sessions whose heartbeat clock ran out.
// Pairing attempts get a short leash; connected sessions a longer one, so a
// pairing code abandoned at the QR screen never outlives an idle but real
// session.
type Reaper struct {
	reg          *Registry
	interval     time.Duration
	pairingTTL   time.Duration
	connectedTTL time.Duration
}

func NewReaper(reg *Registry, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = 90 * time.Second
	}
	return &Reaper{
		reg:          reg,
		interval:     interval,
		pairingTTL:   reg.opts.PairingTTL,
		connectedTTL: reg.opts.ConnectedTTL,
	}
}

// Run sweeps on a ticker until the context is cancelled. Meant to be started
// as a goroutine from main.
func (rp *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(rp.interval)
	defer ticker.Stop()

	log.Printf("✓ Session reaper running (interval %s, pairing TTL %s, idle TTL %s)",
		rp.interval, rp.pairingTTL, rp.connectedTTL)

	for {
		select {
		case <-ctx.Done():
			log.Println("⏹ Session reaper stopped")
			return
		case <-ticker.C:
			rp.Sweep()
		}
	}
}

// Sweep runs one eviction pass. Expired tenants are collected under the read
// lock first; eviction re-checks state under the write lock, so a session
// that connects or heartbeats mid-sweep survives.
func (rp *Reaper) Sweep() {
	now := time.Now()

	type victim struct {
		tenantID string
		reason   string
	}
	var victims []victim

	rp.reg.mu.RLock()
	for tenantID, sess := range rp.reg.sessions {
		age := now.Sub(sess.LastHeartbeatAt)
		switch {
		case sess.Status.Pairing() && age > rp.pairingTTL:
			victims = append(victims, victim{tenantID, "pairing expired"})
		case sess.Status == model.StatusConnected && age > rp.connectedTTL:
			victims = append(victims, victim{tenantID, "heartbeat timeout"})
		case sess.Status.Terminal() && age > rp.pairingTTL:
			// Tombstones left for status polls get swept too.
			victims = append(victims, victim{tenantID, "terminal record expired"})
		}
	}
	rp.reg.mu.RUnlock()

	for _, v := range victims {
		if rp.expiredStill(v.tenantID, now) {
			rp.reg.evict(v.tenantID, v.reason)
		}
	}
}

// expiredStill re-checks the TTL under current state so a touch that landed
// between collection and eviction wins.
func (rp *Reaper) expiredStill(tenantID string, now time.Time) bool {
	rp.reg.mu.RLock()
	defer rp.reg.mu.RUnlock()

	sess, ok := rp.reg.sessions[tenantID]
	if !ok {
		return false
	}

	age := now.Sub(sess.LastHeartbeatAt)
	if sess.Status == model.StatusConnected {
		return age > rp.connectedTTL
	}
	return age > rp.pairingTTL
}
