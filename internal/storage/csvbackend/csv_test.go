package csvbackend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FranksOps/shopscout/internal/storage"
)

func TestCSVBackend(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "shops.csv")

	b, err := New(filePath)
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	s1 := &storage.Storefront{
		ID:        "csv1",
		RunID:     "run1",
		Keyword:   "keripik sanjai",
		ShopID:    "1001",
		CreatedAt: now.Add(-2 * time.Hour),
		Name:      "Toko Sanjai, Bukittinggi",
		Username:  "sanjai.official",
		Location:  "KOTA BUKITTINGGI",
		URL:       "https://shopee.co.id/sanjai.official",
		Rating:    4.87,
		ItemCount: storage.Int64(42),
	}
	s2 := &storage.Storefront{
		ID:        "csv2",
		RunID:     "run2",
		Keyword:   "rendang",
		ShopID:    "2002",
		CreatedAt: now.Add(-1 * time.Hour),
		Name:      "Rendang \"Uni\"",
		Username:  "rendang.uni",
		URL:       "https://shopee.co.id/rendang.uni",
	}

	require.NoError(t, b.Save(ctx, s1))
	require.NoError(t, b.Save(ctx, s2))

	byKeyword, err := b.Query(ctx, storage.Filter{Keyword: "keripik sanjai"})
	require.NoError(t, err)
	require.Len(t, byKeyword, 1)
	got := byKeyword[0]
	assert.Equal(t, s1.Name, got.Name)
	assert.Equal(t, 4.87, got.Rating)
	require.NotNil(t, got.ItemCount)
	assert.Equal(t, int64(42), *got.ItemCount)
	assert.True(t, got.CreatedAt.Equal(s1.CreatedAt), "CreatedAt %v, got %v", s1.CreatedAt, got.CreatedAt)

	byRun, err := b.Query(ctx, storage.Filter{RunID: "run2"})
	require.NoError(t, err)
	require.Len(t, byRun, 1)
	assert.Nil(t, byRun[0].ItemCount)
	assert.Equal(t, `Rendang "Uni"`, byRun[0].Name, "quoted name survives CSV")

	past := now.Add(-90 * time.Minute)
	since, err := b.Query(ctx, storage.Filter{Since: &past})
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, "csv2", since[0].ID)

	all, err := b.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "csv2", all[0].ID)

	offset, err := b.Query(ctx, storage.Filter{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, offset, 1)
	assert.Equal(t, "csv1", offset[0].ID)
}

func TestCSVBackend_ReopenKeepsSingleHeader(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "shops.csv")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		b, err := New(filePath)
		require.NoError(t, err)
		require.NoError(t, b.Save(ctx, &storage.Storefront{ID: "x", CreatedAt: time.Now().UTC()}))
		require.NoError(t, b.Close())
	}

	b, err := New(filePath)
	require.NoError(t, err)
	defer b.Close()

	all, err := b.Query(ctx, storage.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
