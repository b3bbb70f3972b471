package database

import (
	"context"
	"fmt"
)

// schema holds the DDL applied at startup. Statements are idempotent so
// the bootstrap can run on every start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS update_history (
		id          TEXT PRIMARY KEY,
		device_id   TEXT NOT NULL,
		status      TEXT NOT NULL,
		from_version INTEGER NOT NULL,
		to_version   INTEGER NOT NULL,
		error       TEXT NOT NULL DEFAULT '',
		started_at  TEXT NOT NULL,
		finished_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_update_history_device
		ON update_history (device_id, finished_at DESC)`,
}

// bootstrapSchema applies the schema statements in order.
func (db *DB) bootstrapSchema(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema statement %d: %w", i, err)
		}
	}
	return nil
}
