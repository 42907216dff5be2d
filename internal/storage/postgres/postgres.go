package postgres

import (
	"context"
	"fmt"

	"github.com/FranksOps/shopscout/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS storefronts (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	keyword TEXT NOT NULL,
	shop_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	name TEXT NOT NULL,
	username TEXT NOT NULL,
	location TEXT NOT NULL,
	url TEXT NOT NULL,
	rating DOUBLE PRECISION NOT NULL,
	item_count BIGINT
);
CREATE INDEX IF NOT EXISTS storefronts_keyword_idx ON storefronts (keyword);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, s *storage.Storefront) error {
	query := `
	INSERT INTO storefronts (
		id, run_id, keyword, shop_id, created_at, name, username, location, url, rating, item_count
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := b.pool.Exec(ctx, query,
		s.ID,
		s.RunID,
		s.Keyword,
		s.ShopID,
		s.CreatedAt,
		s.Name,
		s.Username,
		s.Location,
		s.URL,
		s.Rating,
		s.ItemCount,
	)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Storefront, error) {
	query := `SELECT id, run_id, keyword, shop_id, created_at, name, username, location, url, rating, item_count FROM storefronts WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.Keyword != "" {
		query += fmt.Sprintf(` AND keyword = $%d`, paramCount)
		args = append(args, filter.Keyword)
		paramCount++
	}
	if filter.RunID != "" {
		query += fmt.Sprintf(` AND run_id = $%d`, paramCount)
		args = append(args, filter.RunID)
		paramCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND created_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	defer rows.Close()

	var results []*storage.Storefront
	for rows.Next() {
		var s storage.Storefront
		err := rows.Scan(
			&s.ID, &s.RunID, &s.Keyword, &s.ShopID, &s.CreatedAt,
			&s.Name, &s.Username, &s.Location, &s.URL, &s.Rating, &s.ItemCount,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		results = append(results, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	return results, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
