package model

import "time"

// ConnDB, MessageDB and ContactDB adapt the package-level SQL functions to
// the store interfaces the session registry accepts, so tests can construct
// isolated registries with in-memory fakes.

type ConnDB struct{}

func (ConnDB) GetByTenant(tenantID string) (*Connection, error) { return GetConnectionByTenant(tenantID) }
func (ConnDB) TenantByJID(jid string) (string, error)           { return GetTenantByJID(jid) }
func (ConnDB) ListActive() ([]Connection, error)                { return ListActiveConnections() }
func (ConnDB) Upsert(conn *Connection) error                    { return UpsertConnection(conn) }
func (ConnDB) UpdateQR(tenantID, code string, expiresAt time.Time) error {
	return UpdateConnectionQR(tenantID, code, expiresAt)
}
func (ConnDB) OnConnected(tenantID, jid, phone string) error {
	return UpdateConnectionOnConnected(tenantID, jid, phone)
}
func (ConnDB) OnDisconnected(tenantID, status string) error {
	return UpdateConnectionOnDisconnected(tenantID, status)
}
func (ConnDB) MarkStale(tenantID, reason string) error { return MarkConnectionStale(tenantID, reason) }

type MessageDB struct{}

func (MessageDB) Insert(m *Message) error { return InsertMessage(m) }
func (MessageDB) ByDedupeKey(tenantID, key string) (*Message, error) {
	return GetMessageByDedupeKey(tenantID, key)
}
func (MessageDB) ByID(tenantID, messageID string) (*Message, error) {
	return GetMessageByID(tenantID, messageID)
}
func (MessageDB) UpdateBody(tenantID, messageID, body string) error {
	return UpdateMessageBody(tenantID, messageID, body)
}
func (MessageDB) SetReaction(tenantID, messageID, emoji string) error {
	return SetMessageReaction(tenantID, messageID, emoji)
}
func (MessageDB) Redact(tenantID, messageID string) error { return RedactMessage(tenantID, messageID) }
func (MessageDB) Delete(tenantID, messageID string) error {
	return DeleteMessageRow(tenantID, messageID)
}

type ContactDB struct{}

func (ContactDB) UpsertBatch(tenantID string, batch []Contact) error {
	return UpsertContactsBatch(tenantID, batch)
}
