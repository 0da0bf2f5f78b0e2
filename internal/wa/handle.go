package wa

import (
	"context"
	"time"
)

// EventKind identifies a lifecycle event coming out of a live client.
type EventKind string

const (
	KindConnected      EventKind = "connected"
	KindPairSuccess    EventKind = "pair_success"
	KindLoggedOut      EventKind = "logged_out"
	KindDisconnected   EventKind = "disconnected"
	KindStreamReplaced EventKind = "stream_replaced"
	KindMessage        EventKind = "message"
)

// Event is the message form of an automation callback. The registry routes
// each event to the owning tenant's record instead of letting the client
// mutate shared state directly.
type Event struct {
	Kind      EventKind
	JID       string
	Phone     string
	MessageID string
	Body      string
	Timestamp time.Time
}

// EventFunc receives lifecycle events for exactly one tenant's handle.
type EventFunc func(Event)

// QREvent mirrors the pairing channel items: Event is "code", "success",
// "timeout" or an "err-*" string, Code carries the scannable payload.
type QREvent struct {
	Event string
	Code  string
}

// SendResult is what the remote side acknowledged for an outbound message.
type SendResult struct {
	MessageID string
	Timestamp time.Time
}

// ContactEntry is one row of the client's contact surface.
type ContactEntry struct {
	JID        string
	Phone      string
	Name       string
	IsBusiness bool
	IsGroup    bool
}

// Handle is the exclusively-owned live client resource for one tenant.
// All blocking calls take a context; the relay layer bounds them.
type Handle interface {
	Connect() error
	Disconnect()
	Logout(ctx context.Context) error
	IsConnected() bool
	IsLoggedIn() bool
	PairedJID() string
	PairedPhone() string

	QRChannel(ctx context.Context) (<-chan QREvent, error)

	SendText(ctx context.Context, toJID, body string) (SendResult, error)
	EditText(ctx context.Context, toJID, messageID, body string) error
	RevokeMessage(ctx context.Context, toJID, messageID string) error
	React(ctx context.Context, toJID, messageID, emoji string) error
	Contacts(ctx context.Context) ([]ContactEntry, error)
	IsOnWhatsApp(ctx context.Context, phone string) (bool, error)
}

// Factory creates and restores handles. The registry owns the mapping from
// tenant to handle; the factory only talks to the device store.
type Factory interface {
	// NewHandle creates a fresh, unpaired client for a tenant.
	NewHandle(tenantID string, onEvent EventFunc) (Handle, error)

	// RestoreHandle re-creates a client for a previously paired device.
	RestoreHandle(ctx context.Context, jid string, onEvent EventFunc) (Handle, error)

	// StoredJIDs lists the device identities present in the device store.
	StoredJIDs(ctx context.Context) ([]string, error)

	// DeleteStored drops the device row behind a handle after logout.
	DeleteStored(ctx context.Context, h Handle) error
}
