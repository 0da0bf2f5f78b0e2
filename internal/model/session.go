package model

import (
	"time"

	"salesbridge/internal/wa"
)

// SessionStatus is the pairing state machine position of one tenant session.
type SessionStatus string

const (
	StatusNoClient     SessionStatus = "no_client"
	StatusConnecting   SessionStatus = "connecting"
	StatusQRReady      SessionStatus = "qr_ready"
	StatusConnected    SessionStatus = "connected"
	StatusDisconnected SessionStatus = "disconnected"
	StatusError        SessionStatus = "error"
)

// Pairing reports whether the session is mid-pairing (code issued or pending).
func (s SessionStatus) Pairing() bool {
	return s == StatusConnecting || s == StatusQRReady
}

// Live reports whether the record must be backed by a live handle.
func (s SessionStatus) Live() bool {
	return s == StatusConnecting || s == StatusQRReady || s == StatusConnected
}

// Terminal reports whether only a fresh initialize can revive the tenant.
func (s SessionStatus) Terminal() bool {
	return s == StatusDisconnected || s == StatusError
}

// SyncStatus tracks the post-connect bulk ingestion, owned by the sync
// coordinator. Independent from SessionStatus: a failed sync never implies
// a broken connection.
type SyncStatus string

const (
	SyncIdle      SyncStatus = "idle"
	SyncPending   SyncStatus = "pending"
	SyncRunning   SyncStatus = "syncing"
	SyncCompleted SyncStatus = "completed"
	SyncError     SyncStatus = "error"
)

// Session is the in-memory state record for one tenant. Owned exclusively by
// the registry: the pointer never leaves the service package and every access
// goes through the registry's lock. Everything else works on SessionView
// snapshots.
type Session struct {
	TenantID  string
	CompanyID string

	Status      SessionStatus
	PairingCode string
	PhoneNumber string
	JID         string

	SyncStatus     SyncStatus
	SyncedContacts int
	TotalContacts  int

	LastHeartbeatAt time.Time
	LastError       string

	// Handle is non-nil iff Status.Live(). Released exactly once on
	// disconnect or eviction.
	Handle wa.Handle
}

// SessionView is the JSON-safe copy handed out to handlers; it never carries
// the live handle.
type SessionView struct {
	TenantID        string        `json:"tenantId"`
	CompanyID       string        `json:"companyId,omitempty"`
	Status          SessionStatus `json:"status"`
	PairingCode     string        `json:"pairingCode,omitempty"`
	PhoneNumber     string        `json:"phoneNumber,omitempty"`
	JID             string        `json:"jid,omitempty"`
	SyncStatus      SyncStatus    `json:"syncStatus"`
	SyncedContacts  int           `json:"syncedContacts"`
	TotalContacts   int           `json:"totalContacts"`
	LastHeartbeatAt time.Time     `json:"lastHeartbeatAt"`
	LastError       string        `json:"lastError,omitempty"`
}

func (s *Session) View() SessionView {
	return SessionView{
		TenantID:        s.TenantID,
		CompanyID:       s.CompanyID,
		Status:          s.Status,
		PairingCode:     s.PairingCode,
		PhoneNumber:     s.PhoneNumber,
		JID:             s.JID,
		SyncStatus:      s.SyncStatus,
		SyncedContacts:  s.SyncedContacts,
		TotalContacts:   s.TotalContacts,
		LastHeartbeatAt: s.LastHeartbeatAt,
		LastError:       s.LastError,
	}
}
