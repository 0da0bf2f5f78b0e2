package model

import (
	"fmt"
	"strings"
	"time"

	"salesbridge/database"
)

// Contact is one synced contact row for a tenant.
type Contact struct {
	ID          int64
	TenantID    string
	JID         string
	PhoneNumber string
	Name        string
	IsBusiness  bool
	SyncedAt    time.Time
}

// UpsertContactsBatch writes one bounded batch of contacts in a single
// multi-row statement. The sync coordinator calls this between yields.
func UpsertContactsBatch(tenantID string, batch []Contact) error {
	if len(batch) == 0 {
		return nil
	}

	db := database.AppDB

	var sb strings.Builder
	sb.WriteString(`
		INSERT INTO wa_contacts (tenant_id, jid, phone_number, name, is_business)
		VALUES `)

	args := make([]interface{}, 0, len(batch)*5)
	for i, c := range batch {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 5
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5)
		args = append(args, tenantID, c.JID, c.PhoneNumber, c.Name, c.IsBusiness)
	}

	sb.WriteString(`
		ON CONFLICT (tenant_id, jid)
		DO UPDATE SET phone_number = EXCLUDED.phone_number,
			name = EXCLUDED.name,
			is_business = EXCLUDED.is_business,
			synced_at = NOW()
	`)

	_, err := db.Exec(sb.String(), args...)
	return err
}
