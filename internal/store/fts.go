package store

import (
	"context"
	"fmt"
	"strings"

	cerr "cortex/internal/errors"
)

// FTSResult is one ranked full-text match
type FTSResult struct {
	SymbolID      string
	QualifiedName string
	FilePath      string
	Rank          float64
	MatchType     string // "exact", "prefix", "substring"
}

// SearchFTS runs tiered full-text search over symbol names and paths:
// exact phrase first, then prefix, then a LIKE fallback, deduplicated by
// symbol ID. Tier membership dominates ranking.
func (s *Store) SearchFTS(ctx context.Context, query string, limit int) ([]FTSResult, error) {
	limit = ClampLimit(limit)
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	var results []FTSResult
	seen := make(map[string]bool)

	appendNew := func(tier []FTSResult) {
		for _, r := range tier {
			if len(results) >= limit {
				return
			}
			if !seen[r.SymbolID] {
				seen[r.SymbolID] = true
				results = append(results, r)
			}
		}
	}

	exact, err := s.searchFTSMatch(ctx, fmt.Sprintf(`"%s"`, escapeFTSQuery(query)), "exact", 1.0, limit)
	if err == nil {
		appendNew(exact)
	}

	if len(results) < limit {
		prefix, err := s.searchFTSMatch(ctx, escapeFTSQuery(query)+"*", "prefix", 0.8, limit)
		if err == nil {
			appendNew(prefix)
		}
	}

	if len(results) < limit {
		like, err := s.searchFTSLike(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		appendNew(like)
	}

	return results, nil
}

func (s *Store) searchFTSMatch(ctx context.Context, ftsQuery, matchType string, rank float64, limit int) ([]FTSResult, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT s.id, s.qualified_name, s.file_path,
			bm25(symbols_fts, 1.0, 0.5, 0.3) AS rank
		FROM symbols_fts f
		JOIN symbols s ON f.rowid = s.rowid
		WHERE symbols_fts MATCH ? AND s.removed = 0
		ORDER BY rank, s.qualified_name ASC, s.id ASC
		LIMIT ?`, ftsQuery, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FTSResult
	for rows.Next() {
		var r FTSResult
		var bm float64
		if err := rows.Scan(&r.SymbolID, &r.QualifiedName, &r.FilePath, &bm); err != nil {
			return nil, err
		}
		r.MatchType = matchType
		r.Rank = rank
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *Store) searchFTSLike(ctx context.Context, query string, limit int) ([]FTSResult, error) {
	pattern := "%" + query + "%"
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, qualified_name, file_path
		FROM symbols
		WHERE removed = 0 AND (qualified_name LIKE ? OR name LIKE ? OR file_path LIKE ?)
		ORDER BY qualified_name ASC, id ASC
		LIMIT ?`, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, cerr.New(cerr.Storage, "substring search failed", err)
	}
	defer rows.Close()

	var results []FTSResult
	for rows.Next() {
		var r FTSResult
		if err := rows.Scan(&r.SymbolID, &r.QualifiedName, &r.FilePath); err != nil {
			return nil, err
		}
		r.MatchType = "substring"
		r.Rank = 0.5
		results = append(results, r)
	}
	return results, rows.Err()
}

// escapeFTSQuery escapes characters FTS5 treats as syntax
func escapeFTSQuery(query string) string {
	replacer := strings.NewReplacer(
		`"`, `""`,
		`*`, ``,
		`(`, ` `,
		`)`, ` `,
	)
	return strings.TrimSpace(replacer.Replace(query))
}
