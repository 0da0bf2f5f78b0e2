// internal/helper/schema.go
package helper

import (
	"log"

	"salesbridge/database"
)

// InitCustomSchema bootstraps the application tables. Idempotent, runs at
// every boot before anything touches the DB.
func InitCustomSchema() {
	db := database.AppDB

	usersSchema := `
        CREATE TABLE IF NOT EXISTS users (
            id              SERIAL PRIMARY KEY,
            tenant_id       VARCHAR(64) UNIQUE NOT NULL,
            company_id      VARCHAR(64),
            username        VARCHAR(100) UNIQUE NOT NULL,
            email           VARCHAR(255) UNIQUE NOT NULL,
            password_hash   TEXT NOT NULL,
            full_name       VARCHAR(255),
            role            VARCHAR(20) NOT NULL DEFAULT 'user',
            is_active       BOOLEAN NOT NULL DEFAULT true,
            created_at      TIMESTAMP NOT NULL DEFAULT NOW(),
            updated_at      TIMESTAMP NOT NULL DEFAULT NOW(),
            last_login_at   TIMESTAMP
        );

        CREATE INDEX IF NOT EXISTS idx_users_tenant_id ON users(tenant_id);
        CREATE INDEX IF NOT EXISTS idx_users_company_id ON users(company_id);
    `
	if _, err := db.Exec(usersSchema); err != nil {
		log.Fatalf("failed to init users schema: %v", err)
	}

	connectionsSchema := `
        CREATE TABLE IF NOT EXISTS wa_connections (
            id              SERIAL PRIMARY KEY,
            tenant_id       VARCHAR(64) UNIQUE NOT NULL,
            company_id      VARCHAR(64),
            status          VARCHAR(20) NOT NULL DEFAULT 'qr_required',
            phone_number    VARCHAR(50),
            jid             VARCHAR(255),
            qr_code         TEXT,
            qr_expires_at   TIMESTAMP,
            stale_reason    TEXT,
            created_at      TIMESTAMP NOT NULL DEFAULT NOW(),
            connected_at    TIMESTAMP,
            disconnected_at TIMESTAMP
        );

        CREATE INDEX IF NOT EXISTS idx_wa_connections_jid ON wa_connections(jid);
        CREATE INDEX IF NOT EXISTS idx_wa_connections_status ON wa_connections(status);
    `
	if _, err := db.Exec(connectionsSchema); err != nil {
		log.Fatalf("failed to init connections schema: %v", err)
	}

	messagesSchema := `
        CREATE TABLE IF NOT EXISTS wa_messages (
            id              SERIAL PRIMARY KEY,
            tenant_id       VARCHAR(64) NOT NULL,
            message_id      VARCHAR(255) NOT NULL,
            dedupe_key      VARCHAR(64),
            counterparty    VARCHAR(255) NOT NULL,
            direction       VARCHAR(10) NOT NULL,
            body            TEXT NOT NULL DEFAULT '',
            reaction        VARCHAR(16),
            redacted        BOOLEAN NOT NULL DEFAULT false,
            sent_at         TIMESTAMP NOT NULL,
            created_at      TIMESTAMP NOT NULL DEFAULT NOW(),

            UNIQUE (tenant_id, message_id)
        );

        CREATE UNIQUE INDEX IF NOT EXISTS idx_wa_messages_dedupe
            ON wa_messages(tenant_id, dedupe_key) WHERE dedupe_key IS NOT NULL;
        CREATE INDEX IF NOT EXISTS idx_wa_messages_counterparty
            ON wa_messages(tenant_id, counterparty, sent_at DESC);
    `
	if _, err := db.Exec(messagesSchema); err != nil {
		log.Fatalf("failed to init messages schema: %v", err)
	}

	contactsSchema := `
        CREATE TABLE IF NOT EXISTS wa_contacts (
            id              SERIAL PRIMARY KEY,
            tenant_id       VARCHAR(64) NOT NULL,
            jid             VARCHAR(255) NOT NULL,
            phone_number    VARCHAR(50),
            name            VARCHAR(255),
            is_business     BOOLEAN NOT NULL DEFAULT false,
            synced_at       TIMESTAMP NOT NULL DEFAULT NOW(),

            UNIQUE (tenant_id, jid)
        );

        CREATE INDEX IF NOT EXISTS idx_wa_contacts_tenant ON wa_contacts(tenant_id);
    `
	if _, err := db.Exec(contactsSchema); err != nil {
		log.Fatalf("failed to init contacts schema: %v", err)
	}

	log.Println("✓ Database schema ready")
}
