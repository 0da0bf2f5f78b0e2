package service

import (
	"time"

	"salesbridge/internal/model"
)

// ConnectionStore is the persistence surface for connection records. The
// registry treats it as an eventually-consistent cache of its own state:
// divergence is always resolved in favor of the registry, with explicit
// reconciliation writes back through this interface.
type ConnectionStore interface {
	GetByTenant(tenantID string) (*model.Connection, error)
	TenantByJID(jid string) (string, error)
	ListActive() ([]model.Connection, error)
	Upsert(conn *model.Connection) error
	UpdateQR(tenantID, code string, expiresAt time.Time) error
	OnConnected(tenantID, jid, phone string) error
	OnDisconnected(tenantID, status string) error
	MarkStale(tenantID, reason string) error
}

// MessageStore persists relayed message outcomes.
type MessageStore interface {
	Insert(m *model.Message) error
	ByDedupeKey(tenantID, key string) (*model.Message, error)
	ByID(tenantID, messageID string) (*model.Message, error)
	UpdateBody(tenantID, messageID, body string) error
	SetReaction(tenantID, messageID, emoji string) error
	Redact(tenantID, messageID string) error
	Delete(tenantID, messageID string) error
}

// ContactStore receives synced contact batches.
type ContactStore interface {
	UpsertBatch(tenantID string, batch []model.Contact) error
}

// Stores bundles the persistence collaborators handed to NewRegistry.
type Stores struct {
	Conns    ConnectionStore
	Messages MessageStore
	Contacts ContactStore
}
