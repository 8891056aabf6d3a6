package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	cerr "cortex/internal/errors"
	"cortex/internal/sir"
)

// mirrorDir is where canonical summary blobs are mirrored as plain files
const mirrorDir = "sir"

// WriteSIR stores a fresh summary for a symbol: canonical blob plus meta in
// one transaction. expectedContentHash implements stale-write rejection:
// when the symbol's current content hash has moved past the value the
// summary was generated for, nothing is written and ok is false.
func (s *Store) WriteSIR(ctx context.Context, symbolID, expectedContentHash string, summary *sir.SIR, providerName, model string) (ok bool, err error) {
	blob, err := summary.CanonicalJSON()
	if err != nil {
		return false, cerr.New(cerr.InternalError, "failed to canonicalize summary", err)
	}
	sirHash, err := summary.Hash()
	if err != nil {
		return false, cerr.New(cerr.InternalError, "failed to hash summary", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)

	err = s.WithTx(func(tx *sql.Tx) error {
		var current string
		scanErr := tx.QueryRowContext(ctx,
			`SELECT content_hash FROM symbols WHERE id = ? AND removed = 0`, symbolID).Scan(&current)
		if scanErr == sql.ErrNoRows || (scanErr == nil && current != expectedContentHash) {
			return nil // symbol gone or moved on, drop the result
		}
		if scanErr != nil {
			return cerr.New(cerr.Storage, "failed to check content hash", scanErr)
		}

		if _, execErr := tx.ExecContext(ctx, `
			INSERT INTO sir_blobs (symbol_id, blob, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(symbol_id) DO UPDATE SET blob = excluded.blob, updated_at = excluded.updated_at
		`, symbolID, blob, now); execErr != nil {
			return cerr.New(cerr.Storage, "failed to write summary blob", execErr)
		}

		if _, execErr := tx.ExecContext(ctx, `
			INSERT INTO sir_meta (symbol_id, content_hash, sir_hash, provider, model, status, updated_at, last_error, last_attempt_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, '', ?)
			ON CONFLICT(symbol_id) DO UPDATE SET
				content_hash = excluded.content_hash,
				sir_hash = excluded.sir_hash,
				provider = excluded.provider,
				model = excluded.model,
				status = excluded.status,
				updated_at = excluded.updated_at,
				last_error = '',
				last_attempt_at = excluded.last_attempt_at
		`, symbolID, expectedContentHash, sirHash, providerName, model, sir.StatusFresh, now, now); execErr != nil {
			return cerr.New(cerr.Storage, "failed to write summary meta", execErr)
		}

		ok = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if ok && s.mirror {
		s.writeMirror(symbolID, blob)
	}
	return ok, nil
}

// MarkSIRStale records a failed enrichment attempt. An existing summary and
// its sir_hash survive; only status and the error fields move.
func (s *Store) MarkSIRStale(ctx context.Context, symbolID, contentHash, providerName, model, lastError string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	return s.WithTx(func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sir_meta (symbol_id, content_hash, sir_hash, provider, model, status, updated_at, last_error, last_attempt_at)
			VALUES (?, ?, '', ?, ?, ?, ?, ?, ?)
			ON CONFLICT(symbol_id) DO UPDATE SET
				status = ?,
				last_error = excluded.last_error,
				last_attempt_at = excluded.last_attempt_at
		`, symbolID, contentHash, providerName, model, sir.StatusStale, now, lastError, now, sir.StatusStale)
		if err != nil {
			return cerr.New(cerr.Storage, "failed to mark summary stale", err)
		}
		return nil
	})
}

// ReadSIR returns the stored summary blob for a symbol. On a database miss
// it consults the mirror file, but only when the mirror's hash matches the
// sir_hash recorded in sir_meta: the database stays the authority and a
// diverged mirror is never read back. A verified mirror backfills the blob
// so a wiped blob table heals.
func (s *Store) ReadSIR(ctx context.Context, symbolID string) (*sir.SIR, error) {
	var blob []byte
	err := s.conn.QueryRowContext(ctx,
		`SELECT blob FROM sir_blobs WHERE symbol_id = ?`, symbolID).Scan(&blob)
	if err == sql.ErrNoRows {
		blob, err = s.verifiedMirror(ctx, symbolID)
		if err != nil {
			return nil, cerr.Newf(cerr.SymbolNotFound, "no summary stored for %s", symbolID)
		}
		now := time.Now().UTC().Format(time.RFC3339)
		_, _ = s.conn.ExecContext(ctx, `
			INSERT INTO sir_blobs (symbol_id, blob, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(symbol_id) DO UPDATE SET blob = excluded.blob, updated_at = excluded.updated_at
		`, symbolID, blob, now)
	} else if err != nil {
		return nil, cerr.New(cerr.Storage, "failed to read summary blob", err)
	}
	return sir.Parse(blob)
}

// verifiedMirror loads a mirror file and checks its content hash against
// the summary metadata
func (s *Store) verifiedMirror(ctx context.Context, symbolID string) ([]byte, error) {
	blob, err := s.readMirror(symbolID)
	if err != nil {
		return nil, err
	}
	summary, err := sir.Parse(blob)
	if err != nil {
		return nil, err
	}
	hash, err := summary.Hash()
	if err != nil {
		return nil, err
	}
	meta, err := s.GetSIRMeta(ctx, symbolID)
	if err != nil {
		return nil, err
	}
	if meta == nil || meta.SirHash != hash {
		return nil, cerr.Newf(cerr.SymbolNotFound, "mirror for %s diverges from store", symbolID)
	}
	return blob, nil
}

// GetSIRMeta returns the summary metadata for a symbol, or nil when none
// was ever attempted
func (s *Store) GetSIRMeta(ctx context.Context, symbolID string) (*sir.Meta, error) {
	var m sir.Meta
	err := s.conn.QueryRowContext(ctx, `
		SELECT symbol_id, content_hash, sir_hash, provider, model, status, updated_at, last_error, last_attempt_at
		FROM sir_meta WHERE symbol_id = ?`, symbolID).
		Scan(&m.SymbolID, &m.ContentHash, &m.SirHash, &m.Provider, &m.Model,
			&m.Status, &m.UpdatedAt, &m.LastError, &m.LastAttemptAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cerr.New(cerr.Storage, "failed to read summary meta", err)
	}
	return &m, nil
}

// CountSIRByStatus returns how many summaries are in the given status
func (s *Store) CountSIRByStatus(ctx context.Context, status string) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sir_meta WHERE status = ?`, status).Scan(&n)
	if err != nil {
		return 0, cerr.New(cerr.Storage, "failed to count summaries", err)
	}
	return n, nil
}

// writeMirror is best effort: the database stays the authority and a failed
// mirror write only logs
func (s *Store) writeMirror(symbolID string, blob []byte) {
	dir := filepath.Join(s.dir, mirrorDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.logger.Warn("failed to create mirror directory", map[string]interface{}{"error": err.Error()})
		return
	}
	path := filepath.Join(dir, mirrorFileName(symbolID))
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		s.logger.Warn("failed to write mirror file", map[string]interface{}{
			"symbol_id": symbolID,
			"error":     err.Error(),
		})
	}
}

func (s *Store) readMirror(symbolID string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.dir, mirrorDir, mirrorFileName(symbolID)))
}

func (s *Store) removeMirror(symbolID string) {
	_ = os.Remove(filepath.Join(s.dir, mirrorDir, mirrorFileName(symbolID)))
}

// mirrorFileName strips the sym: prefix so mirror files are plain hex names
func mirrorFileName(symbolID string) string {
	const prefix = "sym:"
	if len(symbolID) > len(prefix) && symbolID[:len(prefix)] == prefix {
		symbolID = symbolID[len(prefix):]
	}
	return symbolID + ".json"
}
