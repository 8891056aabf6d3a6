package store

import (
	"context"
	"database/sql"

	"cortex/internal/core"
	cerr "cortex/internal/errors"
)

// ClampLimit bounds a requested result count to 1..100
func ClampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > 100 {
		return 100
	}
	return limit
}

// UpsertSymbol writes or refreshes one symbol row and clears its removed
// flag
func (s *Store) UpsertSymbol(ctx context.Context, sym core.Symbol) error {
	return s.WithTx(func(tx *sql.Tx) error {
		return upsertSymbolTx(ctx, tx, sym)
	})
}

// UpsertSymbols writes a batch in one transaction
func (s *Store) UpsertSymbols(ctx context.Context, syms []core.Symbol) error {
	if len(syms) == 0 {
		return nil
	}
	return s.WithTx(func(tx *sql.Tx) error {
		for _, sym := range syms {
			if err := upsertSymbolTx(ctx, tx, sym); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertSymbolTx(ctx context.Context, tx *sql.Tx, sym core.Symbol) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO symbols (id, language, file_path, kind, name, qualified_name,
			signature, signature_fingerprint, content_hash, start_line, end_line, removed, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET
			language = excluded.language,
			file_path = excluded.file_path,
			kind = excluded.kind,
			name = excluded.name,
			qualified_name = excluded.qualified_name,
			signature = excluded.signature,
			signature_fingerprint = excluded.signature_fingerprint,
			content_hash = excluded.content_hash,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			removed = 0,
			updated_at = datetime('now')
	`, sym.ID, sym.Language, sym.FilePath, sym.Kind, sym.Name, sym.QualifiedName,
		sym.Signature, sym.SignatureFingerprint, sym.ContentHash, sym.StartLine, sym.EndLine)
	if err != nil {
		return cerr.New(cerr.Storage, "failed to upsert symbol", err)
	}
	return nil
}

// MarkRemoved flags the given symbols as removed and cascades: their
// summaries, summary metadata, embeddings and mirror files are deleted, so
// a removed symbol resolves to not-found everywhere.
func (s *Store) MarkRemoved(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.WithTx(func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx,
				`UPDATE symbols SET removed = 1, updated_at = datetime('now') WHERE id = ?`, id); err != nil {
				return cerr.New(cerr.Storage, "failed to mark symbol removed", err)
			}
			if err := deleteSymbolDataTx(ctx, tx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, id := range ids {
		s.removeMirror(id)
	}
	return nil
}

// MarkFileRemoved flags every symbol of a file as removed, with the same
// cascade as MarkRemoved
func (s *Store) MarkFileRemoved(ctx context.Context, filePath string) error {
	syms, err := s.ListSymbolsForFile(ctx, filePath)
	if err != nil {
		return err
	}
	ids := make([]string, len(syms))
	for i, sym := range syms {
		ids[i] = sym.ID
	}
	return s.MarkRemoved(ctx, ids)
}

func deleteSymbolDataTx(ctx context.Context, tx *sql.Tx, id string) error {
	for _, q := range []string{
		`DELETE FROM sir_blobs WHERE symbol_id = ?`,
		`DELETE FROM sir_meta WHERE symbol_id = ?`,
		`DELETE FROM embeddings WHERE symbol_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return cerr.New(cerr.Storage, "failed to cascade symbol removal", err)
		}
	}
	return nil
}

// GetSymbol fetches one live symbol by ID. Removed symbols resolve to
// not-found just like never-seen ones.
func (s *Store) GetSymbol(ctx context.Context, id string) (*core.Symbol, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, language, file_path, kind, name, qualified_name,
			signature, signature_fingerprint, content_hash, start_line, end_line
		FROM symbols WHERE id = ? AND removed = 0`, id)

	sym, err := scanSymbol(row)
	if err == sql.ErrNoRows {
		return nil, cerr.Newf(cerr.SymbolNotFound, "symbol %s not found", id)
	}
	if err != nil {
		return nil, cerr.New(cerr.Storage, "failed to read symbol", err)
	}
	return sym, nil
}

// ContentHash returns the current content hash for a symbol, or "" when the
// symbol is unknown or removed. The dispatcher uses this for stale-write
// rejection.
func (s *Store) ContentHash(ctx context.Context, id string) (string, error) {
	var hash string
	err := s.conn.QueryRowContext(ctx,
		`SELECT content_hash FROM symbols WHERE id = ? AND removed = 0`, id).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", cerr.New(cerr.Storage, "failed to read content hash", err)
	}
	return hash, nil
}

// ListSymbolsForFile returns the live symbols of a file sorted by ID
func (s *Store) ListSymbolsForFile(ctx context.Context, filePath string) ([]core.Symbol, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, language, file_path, kind, name, qualified_name,
			signature, signature_fingerprint, content_hash, start_line, end_line
		FROM symbols WHERE file_path = ? AND removed = 0
		ORDER BY id ASC`, filePath)
	if err != nil {
		return nil, cerr.New(cerr.Storage, "failed to list symbols", err)
	}
	defer rows.Close()

	var syms []core.Symbol
	for rows.Next() {
		sym, err := scanSymbol(rows)
		if err != nil {
			return nil, cerr.New(cerr.Storage, "failed to scan symbol", err)
		}
		syms = append(syms, *sym)
	}
	return syms, rows.Err()
}

// ListFiles returns the distinct file paths that still have live
// symbols, sorted ascending.
func (s *Store) ListFiles(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT DISTINCT file_path FROM symbols WHERE removed = 0
		ORDER BY file_path ASC`)
	if err != nil {
		return nil, cerr.New(cerr.Storage, "failed to list files", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, cerr.New(cerr.Storage, "failed to scan file path", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// CountSymbols returns the number of live symbols
func (s *Store) CountSymbols(ctx context.Context) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM symbols WHERE removed = 0`).Scan(&n)
	if err != nil {
		return 0, cerr.New(cerr.Storage, "failed to count symbols", err)
	}
	return n, nil
}

// SearchLexical matches the query as a substring of id, qualified name,
// file path, language or kind. Results are ordered by qualified name then
// ID so equal inputs always produce equal output.
func (s *Store) SearchLexical(ctx context.Context, query string, limit int) ([]core.Symbol, error) {
	limit = ClampLimit(limit)
	pattern := "%" + query + "%"

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, language, file_path, kind, name, qualified_name,
			signature, signature_fingerprint, content_hash, start_line, end_line
		FROM symbols
		WHERE removed = 0 AND (
			id LIKE ? OR qualified_name LIKE ? OR file_path LIKE ? OR language LIKE ? OR kind LIKE ?
		)
		ORDER BY qualified_name ASC, id ASC
		LIMIT ?`, pattern, pattern, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, cerr.New(cerr.Storage, "lexical search failed", err)
	}
	defer rows.Close()

	var syms []core.Symbol
	for rows.Next() {
		sym, err := scanSymbol(rows)
		if err != nil {
			return nil, cerr.New(cerr.Storage, "failed to scan symbol", err)
		}
		syms = append(syms, *sym)
	}
	return syms, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSymbol(row rowScanner) (*core.Symbol, error) {
	var sym core.Symbol
	err := row.Scan(&sym.ID, &sym.Language, &sym.FilePath, &sym.Kind, &sym.Name,
		&sym.QualifiedName, &sym.Signature, &sym.SignatureFingerprint,
		&sym.ContentHash, &sym.StartLine, &sym.EndLine)
	if err != nil {
		return nil, err
	}
	return &sym, nil
}
