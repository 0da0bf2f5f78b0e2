package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"salesbridge/internal/model"
	"salesbridge/internal/wa"
	"salesbridge/internal/ws"
)

// GetOrCreate is the single entry point for starting a session. It is
// idempotent per tenant: while a pairing attempt is in flight it returns a
// view of the same record, and a connected tenant gets ErrAlreadyConnected
// instead of a second handle. Callers only ever get a snapshot; the live
// record never leaves the registry.
//
// Restart edge: when the persisted record still claims "connected" but no
// live handle exists, the call fails with ErrNeedsReconnect so the caller
// can confirm before the old pairing is abandoned. force=true marks the
// persisted record stale and starts a fresh attempt.
func (r *Registry) GetOrCreate(ctx context.Context, tenantID, companyID string, force bool) (model.SessionView, error) {
	lock := r.initLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	if sess, ok := r.sessions[tenantID]; ok {
		switch {
		case sess.Status == model.StatusConnected:
			view := sess.View()
			r.mu.Unlock()
			return view, ErrAlreadyConnected
		case sess.Status.Pairing():
			// Attempt already in flight, hand back the same record.
			view := sess.View()
			r.mu.Unlock()
			return view, nil
		default:
			// Terminal leftover (error/disconnected), replace it.
			delete(r.sessions, tenantID)
		}
	}
	r.mu.Unlock()

	if !force {
		if conn, err := r.stores.Conns.GetByTenant(tenantID); err == nil && conn.Status == "connected" {
			return model.SessionView{}, ErrNeedsReconnect
		}
	} else {
		if err := r.stores.Conns.MarkStale(tenantID, "forced re-pair"); err != nil && !errors.Is(err, model.ErrConnectionNotFound) {
			log.Printf("⚠ Failed to mark stale before re-pair for tenant %s: %v", tenantID, err)
		}
	}

	sess := &model.Session{
		TenantID:        tenantID,
		CompanyID:       companyID,
		Status:          model.StatusConnecting,
		SyncStatus:      model.SyncIdle,
		LastHeartbeatAt: time.Now(),
	}

	handle, err := r.factory.NewHandle(tenantID, func(evt wa.Event) {
		r.handleEvent(tenantID, evt)
	})
	if err != nil {
		// No record is registered on factory failure; the tenant can
		// simply retry.
		return model.SessionView{}, fmt.Errorf("%w: %v", ErrPairingFailed, err)
	}
	sess.Handle = handle

	r.mu.Lock()
	r.sessions[tenantID] = sess
	view := sess.View()
	r.mu.Unlock()

	record := &model.Connection{TenantID: tenantID, Status: "qr_required"}
	if companyID != "" {
		record.CompanyID = sql.NullString{String: companyID, Valid: true}
	}
	if err := r.stores.Conns.Upsert(record); err != nil {
		log.Printf("⚠ Failed to upsert connection record for tenant %s: %v", tenantID, err)
	}

	go r.runPairing(tenantID, handle)

	fmt.Println("✓ Pairing started for tenant:", tenantID)
	return view, nil
}

// runPairing drives one QR pairing attempt. It consumes the handle's QR
// channel until success, timeout or error; the connected transition itself
// arrives through the event sink, this goroutine only manages codes.
func (r *Registry) runPairing(tenantID string, handle wa.Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.PairingTTL)
	defer cancel()

	qrChan, err := handle.QRChannel(ctx)
	if err != nil {
		r.failPairing(tenantID, fmt.Sprintf("qr channel: %v", err))
		return
	}

	if err := handle.Connect(); err != nil {
		r.failPairing(tenantID, fmt.Sprintf("connect: %v", err))
		return
	}

	for evt := range qrChan {
		switch {
		case evt.Event == "code":
			r.setPairingCode(tenantID, evt.Code)
		case evt.Event == "success":
			// Connected event carries the rest; nothing to do here.
			log.Printf("✓ Pairing code accepted for tenant %s", tenantID)
			return
		case evt.Event == "timeout":
			r.failPairing(tenantID, "pairing window expired")
			return
		case strings.HasPrefix(evt.Event, "err-"):
			r.failPairing(tenantID, "pairing failed: "+evt.Event)
			return
		}
	}

	// Channel closed without a terminal item, usually the TTL context.
	r.failPairing(tenantID, "pairing window expired")
}

func (r *Registry) setPairingCode(tenantID, code string) {
	expiresAt := time.Now().Add(60 * time.Second)

	r.mu.Lock()
	sess, ok := r.sessions[tenantID]
	if !ok || !sess.Status.Pairing() {
		r.mu.Unlock()
		return
	}
	sess.Status = model.StatusQRReady
	sess.PairingCode = code
	r.mu.Unlock()

	if err := r.stores.Conns.UpdateQR(tenantID, code, expiresAt); err != nil {
		log.Printf("⚠ Failed to persist QR for tenant %s: %v", tenantID, err)
	}

	if r.realtime != nil {
		r.realtime.Publish(ws.WsEvent{
			Event:     ws.EventPairingQR,
			Timestamp: time.Now().UTC(),
			Data: ws.PairingQRData{
				TenantID:  tenantID,
				Code:      code,
				ExpiresAt: expiresAt.UTC(),
			},
		})
	}
}

// failPairing moves a still-pairing record to the error state and releases
// its handle. Records that already connected (or were removed) are left
// alone.
func (r *Registry) failPairing(tenantID, reason string) {
	r.mu.Lock()
	sess, ok := r.sessions[tenantID]
	if !ok || !sess.Status.Pairing() {
		r.mu.Unlock()
		return
	}
	handle := sess.Handle
	sess.Handle = nil
	sess.Status = model.StatusError
	sess.PairingCode = ""
	sess.LastError = reason
	r.mu.Unlock()

	if handle != nil {
		handle.Disconnect()
	}

	if err := r.stores.Conns.MarkStale(tenantID, reason); err != nil {
		log.Printf("⚠ Failed to persist pairing failure for tenant %s: %v", tenantID, err)
	}

	if r.realtime != nil {
		r.realtime.Publish(ws.WsEvent{
			Event:     ws.EventPairingFailed,
			Timestamp: time.Now().UTC(),
			Data: ws.PairingFailedData{
				TenantID: tenantID,
				Reason:   reason,
			},
		})
	}

	log.Printf("✗ Pairing failed for tenant %s: %s", tenantID, reason)
}

// handleEvent is the per-tenant sink wired into every handle at creation.
// The automation layer pushes lifecycle events here; nothing in the
// registry polls the handle for state.
func (r *Registry) handleEvent(tenantID string, evt wa.Event) {
	switch evt.Kind {
	case wa.KindConnected:
		r.onConnected(tenantID, evt)
	case wa.KindLoggedOut:
		r.onLoggedOut(tenantID)
	case wa.KindDisconnected, wa.KindStreamReplaced:
		r.onDisconnected(tenantID, evt)
	case wa.KindMessage:
		r.onIncomingMessage(tenantID, evt)
	}
}

func (r *Registry) onConnected(tenantID string, evt wa.Event) {
	if r.isLoggingOut(tenantID) {
		// Explicit disconnect in progress; do not resurrect the record.
		log.Printf("⚠ Ignoring connected event during logout for tenant %s", tenantID)
		return
	}

	r.mu.Lock()
	sess, ok := r.sessions[tenantID]
	if !ok {
		r.mu.Unlock()
		return
	}
	sess.Status = model.StatusConnected
	sess.PairingCode = ""
	sess.PhoneNumber = evt.Phone
	sess.JID = evt.JID
	sess.LastError = ""
	sess.LastHeartbeatAt = time.Now()
	if sess.SyncStatus == model.SyncIdle || sess.SyncStatus == model.SyncError {
		sess.SyncStatus = model.SyncPending
	}
	r.mu.Unlock()

	if err := r.stores.Conns.OnConnected(tenantID, evt.JID, evt.Phone); err != nil {
		log.Printf("⚠ Failed to persist connected state for tenant %s: %v", tenantID, err)
	}

	if r.realtime != nil {
		r.realtime.Publish(ws.WsEvent{
			Event:     ws.EventPairingSuccess,
			Timestamp: time.Now().UTC(),
			Data: ws.PairingSuccessData{
				TenantID:    tenantID,
				PhoneNumber: evt.Phone,
				JID:         evt.JID,
			},
		})
	}
	r.publishStatus(tenantID, model.StatusConnected, evt.Phone)

	fmt.Println("✓ Tenant connected:", tenantID, "as", evt.Phone)

	// First contact sync starts as soon as the session is usable.
	go func() {
		if err := r.StartSync(context.Background(), tenantID); err != nil && !errors.Is(err, ErrSyncInProgress) {
			log.Printf("⚠ Initial sync failed to start for tenant %s: %v", tenantID, err)
		}
	}()
}

// onLoggedOut handles the remote side unlinking the device. The stored
// device is gone for good, so the local device store entry goes with it.
func (r *Registry) onLoggedOut(tenantID string) {
	if r.isLoggingOut(tenantID) {
		return
	}

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
	r.mu.Unlock()

	if handle != nil {
		handle.Disconnect()
		if err := r.factory.DeleteStored(context.Background(), handle); err != nil {
			log.Printf("⚠ Failed to delete device store for tenant %s: %v", tenantID, err)
		}
	}

	r.dropRecord(tenantID, sess)

	if err := r.stores.Conns.OnDisconnected(tenantID, "logged_out"); err != nil {
		log.Printf("⚠ Failed to persist logout for tenant %s: %v", tenantID, err)
	}

	r.publishStatus(tenantID, model.StatusDisconnected, "")
	log.Printf("⏹ Tenant %s logged out remotely", tenantID)
}

// onDisconnected handles an unexpected drop. Disconnected is terminal for
// the record: the handle is released immediately and the tenant re-pairs
// through a fresh initialize. The record stays in the map as a tombstone so
// status polls can report what happened until the next initialize or sweep
// replaces it.
func (r *Registry) onDisconnected(tenantID string, evt wa.Event) {
	if r.isLoggingOut(tenantID) {
		return
	}

	reason := "connection lost"
	if evt.Kind == wa.KindStreamReplaced {
		reason = "stream replaced by another client"
	}

	r.mu.Lock()
	sess, ok := r.sessions[tenantID]
	if !ok || sess.Status != model.StatusConnected {
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

	if err := r.stores.Conns.OnDisconnected(tenantID, "disconnected"); err != nil {
		log.Printf("⚠ Failed to persist disconnect for tenant %s: %v", tenantID, err)
	}

	r.publishStatus(tenantID, model.StatusDisconnected, "")
	log.Printf("⚠ Tenant %s disconnected: %s", tenantID, reason)
}

// onIncomingMessage records an inbound text so history reads include both
// directions. Incoming traffic does not count as tenant liveness.
func (r *Registry) onIncomingMessage(tenantID string, evt wa.Event) {
	msg := &model.Message{
		TenantID:     tenantID,
		MessageID:    evt.MessageID,
		Counterparty: evt.JID,
		Direction:    model.DirectionIncoming,
		Body:         evt.Body,
		SentAt:       evt.Timestamp,
	}
	if err := r.stores.Messages.Insert(msg); err != nil {
		log.Printf("⚠ Failed to store incoming message for tenant %s: %v", tenantID, err)
	}
}

// RestoreSessions re-adopts device stores left over from a previous process
// at boot. Devices that map back to a tenant are reconnected; persisted
// records claiming an active connection with no restorable device are
// marked stale so the next initialize reports needs-reconnect honestly.
func (r *Registry) RestoreSessions(ctx context.Context) error {
	jids, err := r.factory.StoredJIDs(ctx)
	if err != nil {
		return fmt.Errorf("list stored devices: %w", err)
	}

	restored := map[string]bool{}
	for _, jid := range jids {
		tenantID, err := r.stores.Conns.TenantByJID(jid)
		if err != nil {
			log.Printf("⚠ Stored device %s has no tenant mapping, skipping", jid)
			continue
		}

		conn, err := r.stores.Conns.GetByTenant(tenantID)
		if err != nil {
			log.Printf("⚠ Missing connection record for tenant %s, skipping restore", tenantID)
			continue
		}

		handle, err := r.factory.RestoreHandle(ctx, jid, func(evt wa.Event) {
			r.handleEvent(tenantID, evt)
		})
		if err != nil {
			log.Printf("⚠ Failed to restore device for tenant %s: %v", tenantID, err)
			continue
		}

		sess := &model.Session{
			TenantID:        tenantID,
			CompanyID:       conn.CompanyID.String,
			Status:          model.StatusConnecting,
			PhoneNumber:     conn.PhoneNumber.String,
			JID:             jid,
			SyncStatus:      model.SyncIdle,
			LastHeartbeatAt: time.Now(),
			Handle:          handle,
		}

		r.mu.Lock()
		r.sessions[tenantID] = sess
		r.mu.Unlock()

		if err := handle.Connect(); err != nil {
			log.Printf("⚠ Reconnect failed for tenant %s: %v", tenantID, err)
			r.evict(tenantID, "restore failed")
			continue
		}

		restored[tenantID] = true
		fmt.Println("✓ Restored session for tenant:", tenantID)
	}

	// Persisted "connected" rows with no restorable device are lies now.
	active, err := r.stores.Conns.ListActive()
	if err != nil {
		return fmt.Errorf("list active connections: %w", err)
	}
	for _, conn := range active {
		if restored[conn.TenantID] {
			continue
		}
		if err := r.stores.Conns.MarkStale(conn.TenantID, "no device store after restart"); err != nil {
			log.Printf("⚠ Failed to mark stale for tenant %s: %v", conn.TenantID, err)
		}
	}

	log.Printf("✓ Session restore complete: %d device(s) adopted", len(restored))
	return nil
}
