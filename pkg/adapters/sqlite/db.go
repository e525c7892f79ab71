// Package sqlite provides SQLite-backed flow, channel and session storage.
//
// It uses the pure-Go modernc.org/sqlite driver, so no cgo toolchain is needed.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open opens (or creates) the database at path and prepares the schema.
// Use ":memory:" for an ephemeral database.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			draft BLOB,
			active_version TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS flow_versions (
			project_id TEXT NOT NULL,
			version TEXT NOT NULL,
			graph BLOB NOT NULL,
			published_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (project_id, version)
		);
		CREATE TABLE IF NOT EXISTS channels (
			phone_number_id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL UNIQUE,
			access_token TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS sessions (
			project_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			data BLOB NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (project_id, sender_id)
		);`,
	)
	if err != nil {
		return fmt.Errorf("failed to init sqlite schema: %w", err)
	}
	return nil
}
