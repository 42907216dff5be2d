package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/FranksOps/shopscout/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS storefronts (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	keyword TEXT NOT NULL,
	shop_id TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	name TEXT NOT NULL,
	username TEXT NOT NULL,
	location TEXT NOT NULL,
	url TEXT NOT NULL,
	rating REAL NOT NULL,
	item_count INTEGER
);
CREATE INDEX IF NOT EXISTS storefronts_keyword_idx ON storefronts (keyword);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, s *storage.Storefront) error {
	query := `
	INSERT INTO storefronts (
		id, run_id, keyword, shop_id, created_at, name, username, location, url, rating, item_count
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := b.db.ExecContext(ctx, query,
		s.ID,
		s.RunID,
		s.Keyword,
		s.ShopID,
		s.CreatedAt.UTC(),
		s.Name,
		s.Username,
		s.Location,
		s.URL,
		s.Rating,
		s.ItemCount,
	)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}

	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Storefront, error) {
	query := `SELECT id, run_id, keyword, shop_id, created_at, name, username, location, url, rating, item_count FROM storefronts WHERE 1=1`
	args := []any{}

	if filter.Keyword != "" {
		query += ` AND keyword = ?`
		args = append(args, filter.Keyword)
	}
	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	if filter.Since != nil {
		// created_at is stored as text, so both sides must share a zone.
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}

	query += ` ORDER BY created_at DESC, rowid DESC`

	// SQLite only accepts OFFSET after a LIMIT; -1 means unbounded.
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
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
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		results = append(results, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	return results, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
