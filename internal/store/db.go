// Package store is the durable layer: symbols, summaries, embeddings and
// index metadata in a single SQLite database under .cortex/.
package store

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"cortex/internal/config"
	cerr "cortex/internal/errors"
	"cortex/internal/logging"
)

// DBFile is the database filename inside the state directory
const DBFile = "meta.sqlite"

// Store wraps the SQLite connection with transaction helpers
type Store struct {
	conn   *sql.DB
	logger *logging.Logger
	dir    string // .cortex directory
	mirror bool   // mirror SIR blobs to files
}

// Open opens or creates the database at <root>/.cortex/meta.sqlite
func Open(root string, cfg *config.Config, logger *logging.Logger) (*Store, error) {
	dir := filepath.Join(root, config.Dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, cerr.New(cerr.Storage, "failed to create state directory", err)
	}

	dbPath := filepath.Join(dir, DBFile)
	dbExists := fileExists(dbPath)

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, cerr.New(cerr.Storage, "failed to open database", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-64000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, cerr.New(cerr.Storage, "failed to set pragma", err)
		}
	}

	s := &Store{
		conn:   conn,
		logger: logger,
		dir:    dir,
		mirror: cfg.Storage.MirrorSirFiles,
	}

	if !dbExists {
		logger.Info("creating new database", map[string]interface{}{"path": dbPath})
	}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Conn returns the underlying sql.DB connection
func (s *Store) Conn() *sql.DB {
	return s.conn
}

// Dir returns the state directory the store lives in
func (s *Store) Dir() string {
	return s.dir
}

// WithTx executes a function within a transaction. The transaction rolls
// back when the function errors or panics.
func (s *Store) WithTx(fn func(*sql.Tx) error) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return cerr.New(cerr.Storage, "failed to begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("failed to rollback transaction", map[string]interface{}{
				"error":          err.Error(),
				"rollback_error": rbErr.Error(),
			})
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return cerr.New(cerr.Storage, "failed to commit transaction", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
