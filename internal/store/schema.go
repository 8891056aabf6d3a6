package store

import (
	"database/sql"
	"strconv"

	cerr "cortex/internal/errors"
)

// schemaVersion bumps whenever the layout below changes shape
const schemaVersion = 1

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS symbols (
		id TEXT PRIMARY KEY,
		language TEXT NOT NULL,
		file_path TEXT NOT NULL,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		qualified_name TEXT NOT NULL,
		signature TEXT NOT NULL DEFAULT '',
		signature_fingerprint TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		start_line INTEGER NOT NULL DEFAULT 0,
		end_line INTEGER NOT NULL DEFAULT 0,
		removed INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_symbols_file_path ON symbols(file_path)`,
	`CREATE INDEX IF NOT EXISTS idx_symbols_qualified_name ON symbols(qualified_name)`,

	`CREATE TABLE IF NOT EXISTS sir_blobs (
		symbol_id TEXT PRIMARY KEY,
		blob BLOB NOT NULL,
		updated_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`,

	`CREATE TABLE IF NOT EXISTS sir_meta (
		symbol_id TEXT PRIMARY KEY,
		content_hash TEXT NOT NULL,
		sir_hash TEXT NOT NULL,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		status TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		last_error TEXT NOT NULL DEFAULT '',
		last_attempt_at TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS embeddings (
		symbol_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		sir_hash TEXT NOT NULL,
		dims INTEGER NOT NULL,
		vector BLOB NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (symbol_id, provider, model)
	)`,

	`CREATE TABLE IF NOT EXISTS index_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,

	// FTS over symbol names and paths, external content table kept in sync
	// by triggers
	`CREATE VIRTUAL TABLE IF NOT EXISTS symbols_fts USING fts5(
		qualified_name,
		name,
		file_path,
		content='symbols',
		content_rowid='rowid'
	)`,
	`CREATE TRIGGER IF NOT EXISTS symbols_fts_ai AFTER INSERT ON symbols BEGIN
		INSERT INTO symbols_fts(rowid, qualified_name, name, file_path)
		VALUES (new.rowid, new.qualified_name, new.name, new.file_path);
	END`,
	`CREATE TRIGGER IF NOT EXISTS symbols_fts_au AFTER UPDATE ON symbols BEGIN
		INSERT INTO symbols_fts(symbols_fts, rowid, qualified_name, name, file_path)
		VALUES ('delete', old.rowid, old.qualified_name, old.name, old.file_path);
		INSERT INTO symbols_fts(rowid, qualified_name, name, file_path)
		VALUES (new.rowid, new.qualified_name, new.name, new.file_path);
	END`,
	`CREATE TRIGGER IF NOT EXISTS symbols_fts_ad AFTER DELETE ON symbols BEGIN
		INSERT INTO symbols_fts(symbols_fts, rowid, qualified_name, name, file_path)
		VALUES ('delete', old.rowid, old.qualified_name, old.name, old.file_path);
	END`,
}

// migrate creates missing tables and records the schema version. The layout
// is additive, so re-running the statements on an existing database is
// safe.
func (s *Store) migrate() error {
	return s.WithTx(func(tx *sql.Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.Exec(stmt); err != nil {
				return cerr.New(cerr.Storage, "failed to apply schema", err)
			}
		}
		_, err := tx.Exec(
			`INSERT INTO index_meta (key, value) VALUES ('schema_version', ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			strconv.Itoa(schemaVersion))
		if err != nil {
			return cerr.New(cerr.Storage, "failed to record schema version", err)
		}
		return nil
	})
}
