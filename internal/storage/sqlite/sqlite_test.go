package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FranksOps/shopscout/internal/storage"
)

func newBackend(t *testing.T) storage.Backend {
	t.Helper()
	b, err := New(filepath.Join(t.TempDir(), "shops.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestSQLiteBackend(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	now := time.Now().UTC()

	s := &storage.Storefront{
		ID:        "test1234",
		RunID:     "run1",
		Keyword:   "keripik sanjai",
		ShopID:    "88001",
		CreatedAt: now,
		Name:      "Keripik Sanjai Nitta",
		Username:  "nitta.sanjai",
		Location:  "KAB. AGAM",
		URL:       "https://shopee.co.id/nitta.sanjai",
		Rating:    4.91,
		ItemCount: storage.Int64(120),
	}
	require.NoError(t, b.Save(ctx, s))
	require.NoError(t, b.Save(ctx, &storage.Storefront{
		ID:        "test5678",
		RunID:     "run1",
		Keyword:   "keripik sanjai",
		ShopID:    "88002",
		CreatedAt: now.Add(time.Second),
	}))

	results, err := b.Query(ctx, storage.Filter{Keyword: "keripik sanjai"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "test5678", results[0].ID, "newest first")
	assert.Nil(t, results[0].ItemCount, "NULL item_count scans as nil")

	got := results[1]
	assert.Equal(t, s.Name, got.Name)
	assert.Equal(t, s.Username, got.Username)
	assert.Equal(t, s.Location, got.Location)
	assert.Equal(t, s.URL, got.URL)
	assert.Equal(t, s.Rating, got.Rating)
	require.NotNil(t, got.ItemCount)
	assert.Equal(t, int64(120), *got.ItemCount)
	assert.Equal(t, s.CreatedAt.Unix(), got.CreatedAt.Unix())

	past := now.Add(-1 * time.Hour)
	since, err := b.Query(ctx, storage.Filter{Since: &past})
	require.NoError(t, err)
	assert.Len(t, since, 2)

	none, err := b.Query(ctx, storage.Filter{RunID: "run2"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteBackend_SinceAcrossZones(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	wib := time.FixedZone("WIB", 7*60*60)
	est := time.FixedZone("EST", -5*60*60)
	now := time.Now()

	require.NoError(t, b.Save(ctx, &storage.Storefront{ID: "fresh", CreatedAt: now.UTC()}))
	// Stored with a non-UTC offset; still three hours old.
	require.NoError(t, b.Save(ctx, &storage.Storefront{ID: "stale", CreatedAt: now.Add(-3 * time.Hour).In(wib)}))

	tests := []struct {
		name  string
		since time.Time
		want  []string
	}{
		{"east of UTC", now.In(wib).Add(-time.Hour), []string{"fresh"}},
		{"west of UTC", now.In(est).Add(-time.Hour), []string{"fresh"}},
		{"west of UTC, wide window", now.In(est).Add(-4 * time.Hour), []string{"fresh", "stale"}},
		{"east of UTC, future", now.In(wib).Add(time.Hour), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			since := tt.since
			rows, err := b.Query(ctx, storage.Filter{Since: &since})
			require.NoError(t, err)

			var ids []string
			for _, r := range rows {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSQLiteBackend_OffsetWithoutLimit(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Save(ctx, &storage.Storefront{
			ID:        fmt.Sprintf("s%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	results, err := b.Query(ctx, storage.Filter{Offset: 1})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "s1", results[0].ID)
	assert.Equal(t, "s0", results[1].ID)
}
