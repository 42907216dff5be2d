package storage

import (
	"context"
	"time"
)

// Storefront is one resolved seller shop. The six display fields are what the
// export layer renders; the rest is bookkeeping for persisted history.
type Storefront struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Keyword   string    `json:"keyword"`
	ShopID    string    `json:"shop_id"`
	CreatedAt time.Time `json:"created_at"`

	Name      string  `json:"name"`
	Username  string  `json:"username"`
	Location  string  `json:"location"`
	URL       string  `json:"url"`
	Rating    float64 `json:"rating"`
	ItemCount *int64  `json:"item_count"`
}

// Filter allows querying for specific stored storefronts.
type Filter struct {
	Keyword string
	RunID   string
	Since   *time.Time
	Limit   int
	Offset  int
}

// Match reports whether s passes the non-paging parts of the filter. File
// backends use it; SQL backends translate the filter into WHERE clauses.
func (f Filter) Match(s *Storefront) bool {
	if f.Keyword != "" && s.Keyword != f.Keyword {
		return false
	}
	if f.RunID != "" && s.RunID != f.RunID {
		return false
	}
	if f.Since != nil && s.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Page reverses rows into newest-first order and applies Offset and Limit.
// rows must be in insertion order.
func (f Filter) Page(rows []*Storefront) []*Storefront {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	if f.Offset > 0 {
		if f.Offset >= len(rows) {
			return []*Storefront{}
		}
		rows = rows[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(rows) {
		rows = rows[:f.Limit]
	}
	return rows
}

// Backend defines the interface for storing and querying storefronts.
type Backend interface {
	Save(ctx context.Context, s *Storefront) error
	Query(ctx context.Context, filter Filter) ([]*Storefront, error)
	Close() error
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}
