package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"sort"
	"strings"
	"time"

	cerr "cortex/internal/errors"
)

// idChunkSize bounds IN (...) clauses; SQLite limits bound variables per
// statement
const idChunkSize = 500

// EmbeddingRecord is one stored vector, scoped to a provider and model
type EmbeddingRecord struct {
	SymbolID  string
	Provider  string
	Model     string
	SirHash   string
	Dims      int
	Vector    []float32
	UpdatedAt string
}

// UpsertEmbedding stores or refreshes a symbol's vector
func (s *Store) UpsertEmbedding(ctx context.Context, rec EmbeddingRecord) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO embeddings (symbol_id, provider, model, sir_hash, dims, vector, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol_id, provider, model) DO UPDATE SET
			sir_hash = excluded.sir_hash,
			dims = excluded.dims,
			vector = excluded.vector,
			updated_at = excluded.updated_at
	`, rec.SymbolID, rec.Provider, rec.Model, rec.SirHash, len(rec.Vector), encodeVector(rec.Vector), now)
	if err != nil {
		return cerr.New(cerr.Storage, "failed to upsert embedding", err)
	}
	return nil
}

// EmbeddingSirHash returns the sir_hash the stored vector was computed
// from, or "" when no vector exists. Lets the indexer skip re-embedding
// unchanged summaries.
func (s *Store) EmbeddingSirHash(ctx context.Context, symbolID, provider, model string) (string, error) {
	var hash string
	err := s.conn.QueryRowContext(ctx, `
		SELECT sir_hash FROM embeddings WHERE symbol_id = ? AND provider = ? AND model = ?`,
		symbolID, provider, model).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", cerr.New(cerr.Storage, "failed to read embedding hash", err)
	}
	return hash, nil
}

// DeleteEmbeddings drops every vector stored for a symbol
func (s *Store) DeleteEmbeddings(ctx context.Context, symbolID string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM embeddings WHERE symbol_id = ?`, symbolID)
	if err != nil {
		return cerr.New(cerr.Storage, "failed to delete embeddings", err)
	}
	return nil
}

// EmbeddingsForSymbols fetches the vectors for an ID set in chunks, so the
// filter runs inside SQLite instead of scanning every record into memory
func (s *Store) EmbeddingsForSymbols(ctx context.Context, ids []string, provider, model string) ([]EmbeddingRecord, error) {
	var out []EmbeddingRecord
	for start := 0; start < len(ids); start += idChunkSize {
		end := start + idChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		placeholders := strings.Repeat("?,", len(chunk))
		placeholders = placeholders[:len(placeholders)-1]
		args := make([]interface{}, 0, len(chunk)+2)
		args = append(args, provider, model)
		for _, id := range chunk {
			args = append(args, id)
		}

		rows, err := s.conn.QueryContext(ctx, `
			SELECT symbol_id, provider, model, sir_hash, dims, vector, updated_at
			FROM embeddings
			WHERE provider = ? AND model = ? AND symbol_id IN (`+placeholders+`)`, args...)
		if err != nil {
			return nil, cerr.New(cerr.Storage, "failed to fetch embeddings", err)
		}
		recs, err := scanEmbeddings(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// NearestResult pairs a symbol with its cosine similarity to the query
type NearestResult struct {
	SymbolID string
	Score    float64
}

// SearchNearest scans the provider/model scope and returns the top matches
// by cosine similarity, descending, ties broken by ascending symbol ID.
// Removed symbols are excluded at the join.
func (s *Store) SearchNearest(ctx context.Context, query []float32, provider, model string, limit int) ([]NearestResult, error) {
	limit = ClampLimit(limit)

	rows, err := s.conn.QueryContext(ctx, `
		SELECT e.symbol_id, e.dims, e.vector
		FROM embeddings e
		JOIN symbols s ON s.id = e.symbol_id AND s.removed = 0
		WHERE e.provider = ? AND e.model = ?`, provider, model)
	if err != nil {
		return nil, cerr.New(cerr.Storage, "vector search failed", err)
	}
	defer rows.Close()

	var results []NearestResult
	for rows.Next() {
		var id string
		var dims int
		var blob []byte
		if err := rows.Scan(&id, &dims, &blob); err != nil {
			return nil, cerr.New(cerr.Storage, "failed to scan embedding", err)
		}
		vec := decodeVector(blob)
		if len(vec) != len(query) {
			continue
		}
		results = append(results, NearestResult{SymbolID: id, Score: cosine(query, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, cerr.New(cerr.Storage, "vector scan failed", err)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].SymbolID < results[j].SymbolID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// CountEmbeddings returns the number of vectors in a provider/model scope
func (s *Store) CountEmbeddings(ctx context.Context, provider, model string) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM embeddings WHERE provider = ? AND model = ?`, provider, model).Scan(&n)
	if err != nil {
		return 0, cerr.New(cerr.Storage, "failed to count embeddings", err)
	}
	return n, nil
}

func scanEmbeddings(rows *sql.Rows) ([]EmbeddingRecord, error) {
	defer rows.Close()
	var out []EmbeddingRecord
	for rows.Next() {
		var rec EmbeddingRecord
		var blob []byte
		if err := rows.Scan(&rec.SymbolID, &rec.Provider, &rec.Model, &rec.SirHash, &rec.Dims, &blob, &rec.UpdatedAt); err != nil {
			return nil, cerr.New(cerr.Storage, "failed to scan embedding", err)
		}
		rec.Vector = decodeVector(blob)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Vectors are stored little-endian float32, 4 bytes per dimension

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
