package model

import (
	"database/sql"
	"errors"
	"time"

	"salesbridge/database"
)

// Message is one persisted message row, keyed by tenant and counterparty.
// The relay holds no durable state; this table is the durable side of every
// successful relayed action.
type Message struct {
	ID           int64
	TenantID     string
	MessageID    string
	DedupeKey    sql.NullString
	Counterparty string // JID of the remote chat
	Direction    string // outgoing | incoming
	Body         string
	Reaction     sql.NullString
	Redacted     bool
	SentAt       time.Time
	CreatedAt    time.Time
}

const (
	DirectionOutgoing = "outgoing"
	DirectionIncoming = "incoming"
)

var ErrMessageNotFound = errors.New("message not found")

// InsertMessage stores an outgoing or incoming message row.
func InsertMessage(m *Message) error {
	db := database.AppDB

	query := `
		INSERT INTO wa_messages (tenant_id, message_id, dedupe_key, counterparty, direction, body, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, message_id) DO NOTHING
	`

	_, err := db.Exec(query, m.TenantID, m.MessageID, m.DedupeKey, m.Counterparty, m.Direction, m.Body, m.SentAt)
	return err
}

// GetMessageByDedupeKey finds a previously acknowledged send for an
// idempotency key. A timed-out send retried with the same key returns the
// stored row instead of hitting the handle again.
func GetMessageByDedupeKey(tenantID, key string) (*Message, error) {
	db := database.AppDB

	query := `
		SELECT id, tenant_id, message_id, dedupe_key, counterparty, direction,
			body, reaction, redacted, sent_at, created_at
		FROM wa_messages
		WHERE tenant_id = $1 AND dedupe_key = $2
	`

	return scanMessage(db.QueryRow(query, tenantID, key))
}

// GetMessageByID retrieves a message row by its remote message id.
func GetMessageByID(tenantID, messageID string) (*Message, error) {
	db := database.AppDB

	query := `
		SELECT id, tenant_id, message_id, dedupe_key, counterparty, direction,
			body, reaction, redacted, sent_at, created_at
		FROM wa_messages
		WHERE tenant_id = $1 AND message_id = $2
	`

	return scanMessage(db.QueryRow(query, tenantID, messageID))
}

func scanMessage(row *sql.Row) (*Message, error) {
	m := &Message{}
	err := row.Scan(
		&m.ID, &m.TenantID, &m.MessageID, &m.DedupeKey, &m.Counterparty,
		&m.Direction, &m.Body, &m.Reaction, &m.Redacted, &m.SentAt, &m.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateMessageBody applies a confirmed remote edit to the stored row.
func UpdateMessageBody(tenantID, messageID, body string) error {
	db := database.AppDB

	query := `UPDATE wa_messages SET body = $3 WHERE tenant_id = $1 AND message_id = $2`

	_, err := db.Exec(query, tenantID, messageID, body)
	return err
}

// SetMessageReaction records the reaction applied to a message.
func SetMessageReaction(tenantID, messageID, emoji string) error {
	db := database.AppDB

	query := `UPDATE wa_messages SET reaction = $3 WHERE tenant_id = $1 AND message_id = $2`

	_, err := db.Exec(query, tenantID, messageID, emoji)
	return err
}

// RedactMessage blanks the content of a message deleted for everyone.
// The row stays so history keeps its place.
func RedactMessage(tenantID, messageID string) error {
	db := database.AppDB

	query := `UPDATE wa_messages SET body = '', redacted = true WHERE tenant_id = $1 AND message_id = $2`

	_, err := db.Exec(query, tenantID, messageID)
	return err
}

// DeleteMessageRow removes a message deleted for self only.
func DeleteMessageRow(tenantID, messageID string) error {
	db := database.AppDB

	query := `DELETE FROM wa_messages WHERE tenant_id = $1 AND message_id = $2`

	result, err := db.Exec(query, tenantID, messageID)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// ListMessagesByCounterparty returns the stored history with one remote chat,
// newest first.
func ListMessagesByCounterparty(tenantID, counterparty string, limit int) ([]Message, error) {
	db := database.AppDB

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT id, tenant_id, message_id, dedupe_key, counterparty, direction,
			body, reaction, redacted, sent_at, created_at
		FROM wa_messages
		WHERE tenant_id = $1 AND counterparty = $2
		ORDER BY sent_at DESC
		LIMIT $3
	`

	rows, err := db.Query(query, tenantID, counterparty, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.ID, &m.TenantID, &m.MessageID, &m.DedupeKey, &m.Counterparty,
			&m.Direction, &m.Body, &m.Reaction, &m.Redacted, &m.SentAt, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
