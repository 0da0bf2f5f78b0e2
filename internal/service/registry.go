package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"salesbridge/internal/model"
	"salesbridge/internal/wa"
	"salesbridge/internal/ws"
)

// Options are the lifecycle knobs for a registry. Zero values fall back to
// the recommended defaults.
type Options struct {
	PairingTTL    time.Duration // max age of an unconfirmed pairing attempt
	ConnectedTTL  time.Duration // max heartbeat silence for a connected session
	ActionTimeout time.Duration // bound for single-message relay calls
	BulkTimeout   time.Duration // bound for bulk reads (contact listing)
	SyncBatchSize int
}

func (o *Options) withDefaults() {
	if o.PairingTTL <= 0 {
		o.PairingTTL = 5 * time.Minute
	}
	if o.ConnectedTTL <= 0 {
		o.ConnectedTTL = 30 * time.Minute
	}
	if o.ActionTimeout <= 0 {
		o.ActionTimeout = 10 * time.Second
	}
	if o.BulkTimeout <= 0 {
		o.BulkTimeout = 30 * time.Second
	}
	if o.SyncBatchSize <= 0 {
		o.SyncBatchSize = 100
	}
}

// Registry is the process-wide map from tenant id to session record. It is
// the single entry point: route handlers, the reaper and the sync
// coordinator all operate on records returned by the registry and never
// construct one independently.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session

	// Per-tenant pairing locks, held only for the duration of handle
	// creation so concurrent initialize calls cannot spawn two handles.
	initMu    sync.Mutex
	initLocks map[string]*sync.Mutex

	// Tenants mid explicit-disconnect; their reconnect events are ignored.
	loggingOutMu sync.RWMutex
	loggingOut   map[string]bool

	factory  wa.Factory
	stores   Stores
	realtime ws.RealtimePublisher
	opts     Options
}

func NewRegistry(factory wa.Factory, stores Stores, realtime ws.RealtimePublisher, opts Options) *Registry {
	opts.withDefaults()
	return &Registry{
		sessions:   make(map[string]*model.Session),
		initLocks:  make(map[string]*sync.Mutex),
		loggingOut: make(map[string]bool),
		factory:    factory,
		stores:     stores,
		realtime:   realtime,
		opts:       opts,
	}
}

// initLock returns the pairing mutex for one tenant.
func (r *Registry) initLock(tenantID string) *sync.Mutex {
	r.initMu.Lock()
	defer r.initMu.Unlock()

	lock, ok := r.initLocks[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		r.initLocks[tenantID] = lock
	}
	return lock
}

func (r *Registry) isLoggingOut(tenantID string) bool {
	r.loggingOutMu.RLock()
	defer r.loggingOutMu.RUnlock()
	return r.loggingOut[tenantID]
}

func (r *Registry) setLoggingOut(tenantID string, v bool) {
	r.loggingOutMu.Lock()
	defer r.loggingOutMu.Unlock()
	if v {
		r.loggingOut[tenantID] = true
	} else {
		delete(r.loggingOut, tenantID)
	}
}

// ViewOf returns a snapshot of the tenant's record, taken under the
// registry lock. This is the only way session state leaves the package;
// handlers never see the live record.
func (r *Registry) ViewOf(tenantID string) (model.SessionView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[tenantID]
	if !ok {
		return model.SessionView{}, false
	}
	return sess.View(), true
}

// Status returns the current view for a status poll. The poll is
// side-effect-light: its only mutation is the liveness touch on a connected
// session. needsReconnect is true when the persisted record claims an active
// connection that no live handle backs.
func (r *Registry) Status(tenantID string) (model.SessionView, bool, error) {
	r.mu.Lock()
	sess, ok := r.sessions[tenantID]
	if ok {
		if sess.Status == model.StatusConnected {
			sess.LastHeartbeatAt = time.Now()
		}
		view := sess.View()
		r.mu.Unlock()
		return view, false, nil
	}
	r.mu.Unlock()

	// No live record; the persisted row is not trusted as live truth.
	conn, err := r.stores.Conns.GetByTenant(tenantID)
	if err != nil {
		if errors.Is(err, model.ErrConnectionNotFound) {
			return model.SessionView{}, false, ErrSessionNotFound
		}
		return model.SessionView{}, false, err
	}

	view := model.SessionView{
		TenantID:    tenantID,
		CompanyID:   conn.CompanyID.String,
		Status:      model.StatusNoClient,
		PhoneNumber: conn.PhoneNumber.String,
		SyncStatus:  model.SyncIdle,
	}
	if conn.Status == "connected" {
		view.Status = model.StatusDisconnected
		return view, true, nil
	}
	return view, false, nil
}

// Touch updates the liveness clock for a tenant. Called by the explicit
// heartbeat endpoint and by every successful relayed action.
func (r *Registry) Touch(tenantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[tenantID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.LastHeartbeatAt = time.Now()
	return nil
}

// ConnectedSession is one row of the fleet-wide live truth table.
type ConnectedSession struct {
	TenantID        string    `json:"tenantId"`
	CompanyID       string    `json:"companyId,omitempty"`
	PhoneNumber     string    `json:"phoneNumber"`
	JID             string    `json:"jid"`
	SyncStatus      string    `json:"syncStatus"`
	LastHeartbeatAt time.Time `json:"lastHeartbeatAt"`
}

// ListConnected reports every currently connected session straight from
// memory, for admin dashboards that need live truth rather than the
// possibly-stale persisted records.
func (r *Registry) ListConnected() []ConnectedSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ConnectedSession, 0, len(r.sessions))
	for _, sess := range r.sessions {
		if sess.Status != model.StatusConnected {
			continue
		}
		out = append(out, ConnectedSession{
			TenantID:        sess.TenantID,
			CompanyID:       sess.CompanyID,
			PhoneNumber:     sess.PhoneNumber,
			JID:             sess.JID,
			SyncStatus:      string(sess.SyncStatus),
			LastHeartbeatAt: sess.LastHeartbeatAt,
		})
	}
	return out
}

// Remove performs an explicit disconnect: cooperative logout with a bounded
// grace period, then the registry state is released regardless of whether
// the handle acknowledged. The handle is detached and released first; the
// record disappears from the map only after the release completed, so no
// observer ever sees the record gone while the handle is still live.
func (r *Registry) Remove(ctx context.Context, tenantID string) error {
	r.setLoggingOut(tenantID, true)
	defer r.setLoggingOut(tenantID, false)

	r.mu.Lock()
	sess, ok := r.sessions[tenantID]
	if !ok {
		r.mu.Unlock()
		return ErrSessionNotFound
	}
	handle := sess.Handle
	sess.Handle = nil
	sess.Status = model.StatusDisconnected
	sess.PairingCode = ""
	r.mu.Unlock()

	if handle != nil {
		// Best-effort unlink; the grace period bounds how long we wait
		// for the remote side to acknowledge the logout.
		logoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := handle.Logout(logoutCtx); err != nil {
			log.Printf("⚠ Logout failed for tenant %s: %v", tenantID, err)
		}
		cancel()
		handle.Disconnect()

		if err := r.factory.DeleteStored(context.Background(), handle); err != nil {
			log.Printf("⚠ Failed to delete device store for tenant %s: %v", tenantID, err)
		}
	}

	r.dropRecord(tenantID, sess)

	if err := r.stores.Conns.OnDisconnected(tenantID, "logged_out"); err != nil {
		log.Printf("⚠ Failed to persist disconnect for tenant %s: %v", tenantID, err)
	}

	r.publishStatus(tenantID, model.StatusDisconnected, "")
	fmt.Println("✓ Session logged out and released for tenant:", tenantID)
	return nil
}

// dropRecord removes a record from the map, but only if it is still the
// same record that was detached: a fresh initialize may have replaced it
// while the handle release was in flight.
func (r *Registry) dropRecord(tenantID string, sess *model.Session) {
	r.mu.Lock()
	if cur, ok := r.sessions[tenantID]; ok && cur == sess {
		delete(r.sessions, tenantID)
	}
	r.mu.Unlock()
}

// evict releases a record's handle and removes it from the registry. Used by
// the reaper and by terminal event handling. The handle is always released
// before the record stops being observable: the record stays in the map
// (detached, terminal) until Disconnect returned. Persistence failures are
// logged and never keep the record alive, because a registry-level leak is
// worse than a best-effort store write.
func (r *Registry) evict(tenantID, reason string) {
	r.mu.Lock()
	sess, ok := r.sessions[tenantID]
	if !ok {
		r.mu.Unlock()
		return
	}
	handle := sess.Handle
	sess.Handle = nil
	sess.Status = model.StatusDisconnected
	sess.PairingCode = ""
	sess.LastError = reason
	r.mu.Unlock()

	if handle != nil {
		handle.Disconnect()
	}

	r.dropRecord(tenantID, sess)

	if err := r.stores.Conns.MarkStale(tenantID, reason); err != nil {
		log.Printf("⚠ Failed to mark connection stale for tenant %s: %v", tenantID, err)
	}
	r.publishStatus(tenantID, model.StatusDisconnected, "")
	log.Printf("⏹ Evicted session for tenant %s: %s", tenantID, reason)
}

func (r *Registry) publishStatus(tenantID string, status model.SessionStatus, phone string) {
	if r.realtime == nil {
		return
	}
	r.realtime.Publish(ws.WsEvent{
		Event:     ws.EventSessionStatusChanged,
		Timestamp: time.Now().UTC(),
		Data: ws.SessionStatusData{
			TenantID:    tenantID,
			Status:      string(status),
			PhoneNumber: phone,
		},
	})
}
