package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"salesbridge/internal/model"
	"salesbridge/internal/wa"
	"salesbridge/internal/ws"
)

// StartSync kicks off a contact sync for a connected tenant. Single-flight:
// a second call while a pass is running returns ErrSyncInProgress and never
// spawns a second worker.
func (r *Registry) StartSync(ctx context.Context, tenantID string) error {
	r.mu.Lock()
	sess, ok := r.sessions[tenantID]
	if !ok {
		r.mu.Unlock()
		return ErrSessionNotFound
	}
	if sess.Status != model.StatusConnected || sess.Handle == nil {
		r.mu.Unlock()
		return ErrNotConnected
	}
	if sess.SyncStatus == model.SyncRunning {
		r.mu.Unlock()
		return ErrSyncInProgress
	}
	handle := sess.Handle
	sess.SyncStatus = model.SyncRunning
	sess.SyncedContacts = 0
	sess.TotalContacts = 0
	r.mu.Unlock()

	go r.runSync(tenantID, handle)
	return nil
}

// runSync performs one full contact ingestion pass. A failed pass flips only
// the sync status; the connection stays connected and usable.
func (r *Registry) runSync(tenantID string, handle wa.Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.BulkTimeout)
	contacts, err := handle.Contacts(ctx)
	cancel()
	if err != nil {
		r.finishSync(tenantID, 0, 0, fmt.Errorf("fetch contacts: %w", err))
		return
	}

	total := len(contacts)
	r.setSyncProgress(tenantID, 0, total)

	synced := 0
	batchSize := r.opts.SyncBatchSize
	for start := 0; start < total; start += batchSize {
		end := start + batchSize
		if end > total {
			end = total
		}

		batch := make([]model.Contact, 0, end-start)
		for _, entry := range contacts[start:end] {
			if entry.IsGroup {
				continue
			}
			batch = append(batch, model.Contact{
				TenantID:    tenantID,
				JID:         entry.JID,
				PhoneNumber: entry.Phone,
				Name:        entry.Name,
				IsBusiness:  entry.IsBusiness,
			})
		}

		if len(batch) > 0 {
			if err := r.stores.Contacts.UpsertBatch(tenantID, batch); err != nil {
				r.finishSync(tenantID, synced, total, fmt.Errorf("upsert batch: %w", err))
				return
			}
		}

		synced = end
		r.setSyncProgress(tenantID, synced, total)

		// Bail out early if the session died mid-pass.
		if view, ok := r.ViewOf(tenantID); !ok || view.Status != model.StatusConnected {
			r.finishSync(tenantID, synced, total, fmt.Errorf("session no longer connected"))
			return
		}
	}

	r.finishSync(tenantID, synced, total, nil)
}

func (r *Registry) setSyncProgress(tenantID string, synced, total int) {
	r.mu.Lock()
	sess, ok := r.sessions[tenantID]
	if !ok {
		r.mu.Unlock()
		return
	}
	sess.SyncedContacts = synced
	sess.TotalContacts = total
	status := sess.SyncStatus
	r.mu.Unlock()

	r.publishSyncProgress(tenantID, string(status), synced, total)
}

func (r *Registry) finishSync(tenantID string, synced, total int, failure error) {
	r.mu.Lock()
	sess, ok := r.sessions[tenantID]
	if !ok {
		r.mu.Unlock()
		if failure != nil {
			log.Printf("✗ Contact sync failed for tenant %s (session gone): %v", tenantID, failure)
		}
		return
	}
	sess.SyncedContacts = synced
	sess.TotalContacts = total
	if failure != nil {
		sess.SyncStatus = model.SyncError
		sess.LastError = failure.Error()
	} else {
		sess.SyncStatus = model.SyncCompleted
		sess.LastError = ""
	}
	status := sess.SyncStatus
	r.mu.Unlock()

	r.publishSyncProgress(tenantID, string(status), synced, total)

	if failure != nil {
		log.Printf("✗ Contact sync failed for tenant %s: %v", tenantID, failure)
		return
	}
	fmt.Println("✓ Contact sync completed for tenant:", tenantID, "-", synced, "contacts")
}

func (r *Registry) publishSyncProgress(tenantID, status string, synced, total int) {
	if r.realtime == nil {
		return
	}
	r.realtime.Publish(ws.WsEvent{
		Event:     ws.EventSyncProgress,
		Timestamp: time.Now().UTC(),
		Data: ws.SyncProgressData{
			TenantID:   tenantID,
			SyncStatus: status,
			Synced:     synced,
			Total:      total,
		},
	})
}
