package attendance

import (
	"context"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS attendees (
		id             TEXT PRIMARY KEY,
		name           TEXT NOT NULL,
		email          TEXT NOT NULL UNIQUE,
		barcode        TEXT NOT NULL UNIQUE,
		table_number   TEXT,
		seat_number    TEXT,
		checked_in     BOOLEAN NOT NULL DEFAULT FALSE,
		checked_in_at  TIMESTAMPTZ,
		current_status TEXT NOT NULL DEFAULT 'NEVER_ENTERED'
			CHECK (current_status IN ('NEVER_ENTERED', 'IN', 'OUT')),
		time_in        TIMESTAMPTZ,
		time_out       TIMESTAMPTZ,
		total_seconds  BIGINT NOT NULL DEFAULT 0,
		created_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attendees_created ON attendees (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS stations (
		station_id TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		token      TEXT PRIMARY KEY,
		station_id TEXT NOT NULL REFERENCES stations (station_id),
		expires_at TIMESTAMPTZ NOT NULL,
		revoked    BOOLEAN NOT NULL DEFAULT FALSE
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS attendees (
		id             TEXT PRIMARY KEY,
		name           TEXT NOT NULL,
		email          TEXT NOT NULL UNIQUE,
		barcode        TEXT NOT NULL UNIQUE,
		table_number   TEXT,
		seat_number    TEXT,
		checked_in     BOOLEAN NOT NULL DEFAULT 0,
		checked_in_at  TIMESTAMP,
		current_status TEXT NOT NULL DEFAULT 'NEVER_ENTERED'
			CHECK (current_status IN ('NEVER_ENTERED', 'IN', 'OUT')),
		time_in        TIMESTAMP,
		time_out       TIMESTAMP,
		total_seconds  INTEGER NOT NULL DEFAULT 0,
		created_at     TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attendees_created ON attendees (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS stations (
		station_id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		token      TEXT PRIMARY KEY,
		station_id TEXT NOT NULL REFERENCES stations (station_id),
		expires_at TIMESTAMP NOT NULL,
		revoked    BOOLEAN NOT NULL DEFAULT 0
	)`,
}

// Migrate creates the schema for driver ("pgx" or "sqlite3").
func (r *Repository) Migrate(ctx context.Context, driver string) error {
	var schema []string
	switch driver {
	case "pgx":
		schema = postgresSchema
	case "sqlite3":
		schema = sqliteSchema
	default:
		return fmt.Errorf("migrate: unsupported driver %q", driver)
	}
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
