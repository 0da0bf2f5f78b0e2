package model

import (
	"database/sql"
	"errors"
	"time"

	"salesbridge/database"
)

// Connection is the persisted connection record for one tenant. It is an
// eventually-consistent cache of the registry's live truth, never the other
// way around: after a process restart a row claiming "connected" proves
// nothing until the registry re-adopts the device.
type Connection struct {
	ID             int64
	TenantID       string
	CompanyID      sql.NullString
	Status         string // qr_required | connected | disconnected | logged_out | stale
	PhoneNumber    sql.NullString
	JID            sql.NullString
	QRCode         sql.NullString
	QRExpiresAt    sql.NullTime
	StaleReason    sql.NullString
	CreatedAt      time.Time
	ConnectedAt    sql.NullTime
	DisconnectedAt sql.NullTime
}

var ErrConnectionNotFound = errors.New("connection record not found")

// GetConnectionByTenant retrieves the persisted record for a tenant.
func GetConnectionByTenant(tenantID string) (*Connection, error) {
	db := database.AppDB

	query := `
		SELECT id, tenant_id, company_id, status, phone_number, jid,
			qr_code, qr_expires_at, stale_reason, created_at, connected_at, disconnected_at
		FROM wa_connections
		WHERE tenant_id = $1
	`

	conn := &Connection{}
	err := db.QueryRow(query, tenantID).Scan(
		&conn.ID, &conn.TenantID, &conn.CompanyID, &conn.Status,
		&conn.PhoneNumber, &conn.JID, &conn.QRCode, &conn.QRExpiresAt,
		&conn.StaleReason, &conn.CreatedAt, &conn.ConnectedAt, &conn.DisconnectedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrConnectionNotFound
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// GetTenantByJID resolves the owning tenant of a stored device identity.
// Used at boot to re-adopt devices left in the whatsmeow container.
func GetTenantByJID(jid string) (string, error) {
	db := database.AppDB

	var tenantID string
	err := db.QueryRow(`SELECT tenant_id FROM wa_connections WHERE jid = $1`, jid).Scan(&tenantID)
	if err == sql.ErrNoRows {
		return "", ErrConnectionNotFound
	}
	if err != nil {
		return "", err
	}
	return tenantID, nil
}

// ListActiveConnections returns every row still claiming a live connection.
// Used at boot to reconcile persisted state against the device store.
func ListActiveConnections() ([]Connection, error) {
	db := database.AppDB

	query := `
		SELECT id, tenant_id, company_id, status, phone_number, jid,
			qr_code, qr_expires_at, stale_reason, created_at, connected_at, disconnected_at
		FROM wa_connections
		WHERE status = 'connected'
	`

	rows, err := db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []Connection
	for rows.Next() {
		var conn Connection
		if err := rows.Scan(
			&conn.ID, &conn.TenantID, &conn.CompanyID, &conn.Status,
			&conn.PhoneNumber, &conn.JID, &conn.QRCode, &conn.QRExpiresAt,
			&conn.StaleReason, &conn.CreatedAt, &conn.ConnectedAt, &conn.DisconnectedAt,
		); err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}
	return conns, rows.Err()
}

// UpsertConnection inserts or resets the record when pairing starts.
func UpsertConnection(conn *Connection) error {
	db := database.AppDB

	query := `
		INSERT INTO wa_connections (tenant_id, company_id, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id)
		DO UPDATE SET status = $3, stale_reason = NULL, qr_code = NULL, qr_expires_at = NULL
	`

	_, err := db.Exec(query, conn.TenantID, conn.CompanyID, conn.Status)
	return err
}

// UpdateConnectionQR stores the latest pairing code so a dashboard can render
// it even when the poll misses a rotation.
func UpdateConnectionQR(tenantID, code string, expiresAt time.Time) error {
	db := database.AppDB

	query := `
		UPDATE wa_connections
		SET status = 'qr_required', qr_code = $2, qr_expires_at = $3
		WHERE tenant_id = $1
	`

	_, err := db.Exec(query, tenantID, code, expiresAt)
	return err
}

// UpdateConnectionOnConnected marks the record live after pairing confirms.
func UpdateConnectionOnConnected(tenantID, jid, phoneNumber string) error {
	db := database.AppDB

	query := `
		UPDATE wa_connections
		SET status = 'connected', jid = $2, phone_number = $3,
			qr_code = NULL, qr_expires_at = NULL, stale_reason = NULL,
			connected_at = NOW(), disconnected_at = NULL
		WHERE tenant_id = $1
	`

	_, err := db.Exec(query, tenantID, jid, phoneNumber)
	return err
}

// UpdateConnectionOnDisconnected records a remote logout or a drop.
func UpdateConnectionOnDisconnected(tenantID, status string) error {
	db := database.AppDB

	query := `
		UPDATE wa_connections
		SET status = $2, disconnected_at = NOW()
		WHERE tenant_id = $1
	`

	_, err := db.Exec(query, tenantID, status)
	return err
}

// MarkConnectionStale flags a row whose live handle is gone so downstream
// reads stop reporting a false-positive connection.
func MarkConnectionStale(tenantID, reason string) error {
	db := database.AppDB

	query := `
		UPDATE wa_connections
		SET status = 'stale', stale_reason = $2, disconnected_at = NOW()
		WHERE tenant_id = $1
	`

	_, err := db.Exec(query, tenantID, reason)
	return err
}
