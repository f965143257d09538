package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/cache"
)

// CacheTier is a cache.Tier stored in the cache_entries table. Writes are a
// single upsert, so each key is replaced atomically.
type CacheTier struct {
	db *DB
}

// NewCacheTier creates a sqlite-backed cache tier
func NewCacheTier(db *DB) *CacheTier {
	return &CacheTier{db: db}
}

var _ cache.Tier = (*CacheTier)(nil)

// Get implements cache.Tier
func (t *CacheTier) Get(ctx context.Context, namespace, id string) (*cache.Entry, error) {
	stmt, err := t.db.GetPreparedStatement("cache_get")
	if err != nil {
		return nil, err
	}

	var (
		data     []byte
		storedAt int64
	)
	err = stmt.QueryRowContext(ctx, namespace, id).Scan(&data, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry %s/%s: %w", namespace, id, err)
	}

	return &cache.Entry{Data: data, StoredAt: time.Unix(0, storedAt).UTC()}, nil
}

// Set implements cache.Tier
func (t *CacheTier) Set(ctx context.Context, namespace, id string, entry cache.Entry) error {
	stmt, err := t.db.GetPreparedStatement("cache_upsert")
	if err != nil {
		return err
	}

	if _, err := stmt.ExecContext(ctx, namespace, id, entry.Data, entry.StoredAt.UnixNano()); err != nil {
		return fmt.Errorf("failed to write cache entry %s/%s: %w", namespace, id, err)
	}
	return nil
}

// Delete implements cache.Tier
func (t *CacheTier) Delete(ctx context.Context, namespace, id string) error {
	stmt, err := t.db.GetPreparedStatement("cache_delete")
	if err != nil {
		return err
	}

	if _, err := stmt.ExecContext(ctx, namespace, id); err != nil {
		return fmt.Errorf("failed to delete cache entry %s/%s: %w", namespace, id, err)
	}
	return nil
}

// Keys implements cache.Tier
func (t *CacheTier) Keys(ctx context.Context, namespace string) ([]string, error) {
	stmt, err := t.db.GetPreparedStatement("cache_keys")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache keys for %s: %w", namespace, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan cache key: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Clear implements cache.Tier
func (t *CacheTier) Clear(ctx context.Context, namespace string) error {
	stmt, err := t.db.GetPreparedStatement("cache_clear")
	if err != nil {
		return err
	}

	if _, err := stmt.ExecContext(ctx, namespace); err != nil {
		return fmt.Errorf("failed to clear cache namespace %s: %w", namespace, err)
	}
	return nil
}
