package csvbackend

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/FranksOps/shopscout/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	file *os.File
}

// headers defines the CSV column order
var headers = []string{
	"id",
	"run_id",
	"keyword",
	"shop_id",
	"created_at",
	"name",
	"username",
	"location",
	"url",
	"rating",
	"item_count",
}

// New creates a new CSV-backed storage.Backend.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("csvbackend: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("csvbackend: %w", err)
	}

	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(headers); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvbackend: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvbackend: %w", err)
		}
	}

	return &csvBackend{
		file: f,
	}, nil
}

func (b *csvBackend) Save(ctx context.Context, s *storage.Storefront) error {
	itemCount := ""
	if s.ItemCount != nil {
		itemCount = strconv.FormatInt(*s.ItemCount, 10)
	}

	record := []string{
		s.ID,
		s.RunID,
		s.Keyword,
		s.ShopID,
		s.CreatedAt.Format(time.RFC3339Nano),
		s.Name,
		s.Username,
		s.Location,
		s.URL,
		strconv.FormatFloat(s.Rating, 'f', 2, 64),
		itemCount,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("csvbackend: %w", err)
	}

	w := csv.NewWriter(b.file)
	if err := w.Write(record); err != nil {
		return fmt.Errorf("csvbackend: %w", err)
	}
	w.Flush()

	if err := w.Error(); err != nil {
		return fmt.Errorf("csvbackend: %w", err)
	}

	return nil
}

func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Storefront, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("csvbackend: %w", err)
	}
	defer func() {
		// Restore pointer to end for writing
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(b.file)

	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return []*storage.Storefront{}, nil
		}
		return nil, fmt.Errorf("csvbackend: %w", err)
	}

	var rows []*storage.Storefront

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvbackend: %w", err)
		}

		if len(record) != len(headers) {
			continue // skip malformed rows
		}

		createdAt, _ := time.Parse(time.RFC3339Nano, record[4])
		rating, _ := strconv.ParseFloat(record[9], 64)

		s := &storage.Storefront{
			ID:        record[0],
			RunID:     record[1],
			Keyword:   record[2],
			ShopID:    record[3],
			CreatedAt: createdAt,
			Name:      record[5],
			Username:  record[6],
			Location:  record[7],
			URL:       record[8],
			Rating:    rating,
		}
		if record[10] != "" {
			if n, err := strconv.ParseInt(record[10], 10, 64); err == nil {
				s.ItemCount = &n
			}
		}

		if filter.Match(s) {
			rows = append(rows, s)
		}
	}

	return filter.Page(rows), nil
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
