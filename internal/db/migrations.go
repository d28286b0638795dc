package db

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// migrations is an ordered list of SQL statements to run.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS user_property_states (
		user_id          TEXT    NOT NULL,
		property_id      TEXT    NOT NULL,
		hybrid_intensity REAL    NOT NULL DEFAULT 1.0,
		target_occupancy REAL,
		last_simulation  TEXT,
		version          INTEGER NOT NULL DEFAULT 1,
		created_at       TEXT    NOT NULL,
		updated_at       TEXT    NOT NULL,
		PRIMARY KEY (user_id, property_id)
	)`,
	`CREATE TABLE IF NOT EXISTS user_closed_floors (
		user_id     TEXT    NOT NULL,
		property_id TEXT    NOT NULL,
		floor       INTEGER NOT NULL CHECK (floor >= 1),
		PRIMARY KEY (user_id, property_id, floor),
		FOREIGN KEY (user_id, property_id)
			REFERENCES user_property_states (user_id, property_id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS change_log (
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		change_id   TEXT    NOT NULL UNIQUE,
		batch_id    TEXT,
		user_id     TEXT    NOT NULL,
		entity_type TEXT    NOT NULL,
		entity_id   TEXT    NOT NULL,
		field       TEXT    NOT NULL,
		old_value   TEXT,
		new_value   TEXT,
		timestamp   TEXT    NOT NULL,
		session_id  TEXT,
		metadata    TEXT    NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_change_log_user_time ON change_log (user_id, timestamp DESC, seq DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_change_log_entity ON change_log (entity_type, entity_id)`,
	`CREATE INDEX IF NOT EXISTS idx_change_log_session ON change_log (session_id)`,
	`CREATE TABLE IF NOT EXISTS user_sessions (
		session_id    TEXT    PRIMARY KEY,
		user_id       TEXT    NOT NULL,
		started_at    TEXT    NOT NULL,
		last_activity TEXT    NOT NULL,
		ended_at      TEXT,
		changes_count INTEGER NOT NULL DEFAULT 0,
		active        INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_sessions_user ON user_sessions (user_id, started_at DESC)`,
}

// migrate runs all migrations in order.
func migrate(db *sql.DB) error {
	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}

	// Column additions (idempotent, checks if column exists first)
	columnMigrations := []struct {
		table, column, definition string
	}{
		{"user_sessions", "device_info", "TEXT NOT NULL DEFAULT ''"},
		{"user_sessions", "ip_address", "TEXT NOT NULL DEFAULT ''"},
	}

	for _, cm := range columnMigrations {
		if err := addColumnIfNotExists(db, cm.table, cm.column, cm.definition); err != nil {
			return fmt.Errorf("adding %s.%s: %w", cm.table, cm.column, err)
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(db *sql.DB, table, column, definition string) error {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("checking table info: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			slog.Warn("closing rows", "error", cerr)
		}
	}()

	found := false
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dfltValue any
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return fmt.Errorf("scanning column info: %w", err)
		}
		if name == column {
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating columns: %w", err)
	}
	if found {
		return nil
	}

	_, err = db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	return err
}
