package database

import (
	"database/sql"
	"fmt"
)

// Schema bootstrap. Idempotent; runs at startup before the services are wired.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id SERIAL PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		email TEXT NOT NULL DEFAULT '',
		club_name TEXT,
		cash BIGINT NOT NULL DEFAULT 0 CHECK (cash >= 0),
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS players (
		id SERIAL PRIMARY KEY,
		external_id TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		positions TEXT NOT NULL DEFAULT '',
		club_name TEXT NOT NULL DEFAULT '',
		age INT NOT NULL DEFAULT 0,
		nationality TEXT NOT NULL DEFAULT '',
		rating INT NOT NULL DEFAULT 0,
		potential INT NOT NULL DEFAULT 0,
		value BIGINT NOT NULL DEFAULT 0,
		wage BIGINT NOT NULL DEFAULT 0,
		is_custom BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS transfer_bids (
		id SERIAL PRIMARY KEY,
		account_id INT NOT NULL REFERENCES accounts(id),
		player_id TEXT NOT NULL,
		amount BIGINT NOT NULL CHECK (amount > 0),
		note TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		resolved_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS squad_submissions (
		id SERIAL PRIMARY KEY,
		account_id INT NOT NULL REFERENCES accounts(id),
		image_ref TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		uploaded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		resolved_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS inventory_grants (
		id SERIAL PRIMARY KEY,
		account_id INT NOT NULL REFERENCES accounts(id),
		item_name TEXT NOT NULL,
		quantity INT NOT NULL CHECK (quantity > 0),
		granted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS audit_entries (
		id SERIAL PRIMARY KEY,
		actor_id INT NOT NULL REFERENCES accounts(id),
		kind TEXT NOT NULL,
		subject_kind TEXT NOT NULL,
		subject_id INT NOT NULL,
		amount BIGINT,
		payload TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transfer_bids_status ON transfer_bids(status)`,
	`CREATE INDEX IF NOT EXISTS idx_transfer_bids_account ON transfer_bids(account_id)`,
	`CREATE INDEX IF NOT EXISTS idx_squad_submissions_status ON squad_submissions(status)`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_grants_account ON inventory_grants(account_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_entries_created ON audit_entries(created_at, id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_entries_actor ON audit_entries(actor_id)`,
}

// EnsureSchema creates the tables and indexes if they do not exist.
func EnsureSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema bootstrap failed: %w", err)
		}
	}
	return nil
}
