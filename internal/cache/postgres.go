package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores entries in the cache_entries table so every instance of
// the service shares reminder claims. Values must be JSON.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (c *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := c.pool.QueryRow(ctx, `
		SELECT value::text FROM cache_entries
		WHERE key = $1 AND expires_at > NOW()`, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %q: %w", key, err)
	}
	return data, true, nil
}

func (c *Postgres) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !json.Valid(value) {
		return ErrNotJSON
	}
	_, err := c.pool.Exec(ctx, `
		INSERT INTO cache_entries (key, value, expires_at)
		VALUES ($1, $2::jsonb, NOW() + $3 * INTERVAL '1 millisecond')
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, string(value), ttl.Milliseconds())
	if err != nil {
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	return nil
}

func (c *Postgres) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if !json.Valid(value) {
		return false, ErrNotJSON
	}
	// The conflict branch only fires over an expired row, so a live claim
	// leaves zero affected rows.
	tag, err := c.pool.Exec(ctx, `
		INSERT INTO cache_entries (key, value, expires_at)
		VALUES ($1, $2::jsonb, NOW() + $3 * INTERVAL '1 millisecond')
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
		WHERE cache_entries.expires_at <= NOW()`,
		key, string(value), ttl.Milliseconds())
	if err != nil {
		return false, fmt.Errorf("cache setnx %q: %w", key, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (c *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := c.pool.Exec(ctx, `DELETE FROM cache_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("cache delete %q: %w", key, err)
	}
	return nil
}

func (c *Postgres) Evict(ctx context.Context) (int, error) {
	tag, err := c.pool.Exec(ctx, `DELETE FROM cache_entries WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("cache evict: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

var _ Cache = (*Postgres)(nil)
