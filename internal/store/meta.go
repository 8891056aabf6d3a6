package store

import (
	"context"
	"database/sql"
	"strconv"

	cerr "cortex/internal/errors"
)

// Well-known index_meta keys
const (
	MetaSchemaVersion = "schema_version"
	MetaLastIndexedAt = "last_indexed_at"
	MetaTokensUsedDay = "tokens_used_day" // UTC day the counter belongs to
	MetaTokensUsed    = "tokens_used"     // tokens spent within that day
)

// GetMeta reads a metadata value, "" when unset
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.conn.QueryRowContext(ctx,
		`SELECT value FROM index_meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", cerr.New(cerr.Storage, "failed to read metadata", err)
	}
	return value, nil
}

// SetMeta writes a metadata value
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO index_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return cerr.New(cerr.Storage, "failed to write metadata", err)
	}
	return nil
}

// GetMetaInt64 reads a numeric metadata value, 0 when unset
func (s *Store) GetMetaInt64(ctx context.Context, key string) (int64, error) {
	value, err := s.GetMeta(ctx, key)
	if err != nil || value == "" {
		return 0, err
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, cerr.New(cerr.Storage, "corrupt numeric metadata", err)
	}
	return n, nil
}

// SetMetaInt64 writes a numeric metadata value
func (s *Store) SetMetaInt64(ctx context.Context, key string, value int64) error {
	return s.SetMeta(ctx, key, strconv.FormatInt(value, 10))
}

// AddTokensUsed charges tokens against the daily counter and returns the
// new total. The counter resets whenever the stored day differs from day.
func (s *Store) AddTokensUsed(ctx context.Context, day string, tokens int64) (int64, error) {
	var total int64
	err := s.WithTx(func(tx *sql.Tx) error {
		var storedDay string
		scanErr := tx.QueryRowContext(ctx,
			`SELECT value FROM index_meta WHERE key = ?`, MetaTokensUsedDay).Scan(&storedDay)
		if scanErr != nil && scanErr != sql.ErrNoRows {
			return cerr.New(cerr.Storage, "failed to read budget day", scanErr)
		}

		if storedDay == day {
			var value string
			scanErr = tx.QueryRowContext(ctx,
				`SELECT value FROM index_meta WHERE key = ?`, MetaTokensUsed).Scan(&value)
			if scanErr != nil && scanErr != sql.ErrNoRows {
				return cerr.New(cerr.Storage, "failed to read budget counter", scanErr)
			}
			total, _ = strconv.ParseInt(value, 10, 64)
		}
		total += tokens

		for key, value := range map[string]string{
			MetaTokensUsedDay: day,
			MetaTokensUsed:    strconv.FormatInt(total, 10),
		} {
			if _, execErr := tx.ExecContext(ctx, `
				INSERT INTO index_meta (key, value) VALUES (?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value); execErr != nil {
				return cerr.New(cerr.Storage, "failed to write budget counter", execErr)
			}
		}
		return nil
	})
	return total, err
}

// TokensUsed returns the tokens charged for the given UTC day
func (s *Store) TokensUsed(ctx context.Context, day string) (int64, error) {
	storedDay, err := s.GetMeta(ctx, MetaTokensUsedDay)
	if err != nil {
		return 0, err
	}
	if storedDay != day {
		return 0, nil
	}
	return s.GetMetaInt64(ctx, MetaTokensUsed)
}
