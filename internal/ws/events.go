package ws

import "time"

// Event names pushed to dashboard clients.
const (
	EventPairingQR            = "pairing.qr"
	EventPairingSuccess       = "pairing.success"
	EventPairingFailed        = "pairing.timeout"
	EventSessionStatusChanged = "session.status_changed"
	EventSyncProgress         = "sync.progress"
)

// WsEvent is the envelope broadcast to every connected dashboard.
type WsEvent struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// PairingQRData carries a fresh pairing code to render.
type PairingQRData struct {
	TenantID  string    `json:"tenantId"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// PairingSuccessData announces a completed pairing.
type PairingSuccessData struct {
	TenantID    string `json:"tenantId"`
	PhoneNumber string `json:"phoneNumber"`
	JID         string `json:"jid"`
}

// PairingFailedData announces a pairing that timed out or errored.
type PairingFailedData struct {
	TenantID string `json:"tenantId"`
	Reason   string `json:"reason"`
}

// SessionStatusData announces a session state transition.
type SessionStatusData struct {
	TenantID    string `json:"tenantId"`
	Status      string `json:"status"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// SyncProgressData reports contact sync progress counters.
type SyncProgressData struct {
	TenantID   string `json:"tenantId"`
	SyncStatus string `json:"syncStatus"`
	Synced     int    `json:"synced"`
	Total      int    `json:"total"`
}
