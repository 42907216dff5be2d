package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/shopscout/internal/metrics"
	"github.com/FranksOps/shopscout/internal/shopee"
	"github.com/FranksOps/shopscout/internal/storage"
	"github.com/FranksOps/shopscout/pkg/ratelimit"
)

// Bounds accepted for the number of search hits requested per run.
const (
	MinLimit = 5
	MaxLimit = 50
)

var (
	ErrEmptyKeyword = errors.New("pipeline: keyword is required")
	ErrLimitRange   = fmt.Errorf("pipeline: limit must be between %d and %d", MinLimit, MaxLimit)
)

// Searcher runs one keyword search.
type Searcher interface {
	Search(ctx context.Context, keyword string, limit int) ([]shopee.SearchHit, error)
}

// Resolver expands a shop identifier into a storefront. A nil record with a
// nil error means the shop has no detail data.
type Resolver interface {
	ShopDetail(ctx context.Context, id shopee.ShopID) (*storage.Storefront, error)
}

// ResultSet holds storefronts in the order their identifiers first appeared
// in the search response.
type ResultSet []storage.Storefront

// Run is the outcome of one pipeline invocation.
type Run struct {
	ID      string
	Keyword string
	Limit   int
	Records ResultSet

	Hits     int
	Distinct int
	Absent   int
	Failed   int

	StartedAt  time.Time
	FinishedAt time.Time
}

// Pipeline searches for a keyword and resolves every distinct seller once.
type Pipeline struct {
	Searcher Searcher
	Resolver Resolver
	// Limiter is waited on before every resolver call. Nil means no delay.
	Limiter ratelimit.Waiter
	Logger  *slog.Logger
	// Concurrency above 1 resolves identifiers in parallel. Output order is
	// unchanged.
	Concurrency int
}

// ValidateRequest checks the inputs a caller collects from a user.
func ValidateRequest(keyword string, limit int) error {
	if strings.TrimSpace(keyword) == "" {
		return ErrEmptyKeyword
	}
	if limit < MinLimit || limit > MaxLimit {
		return ErrLimitRange
	}
	return nil
}

// ShopIDs returns the distinct valid identifiers of hits in first-seen order.
func ShopIDs(hits []shopee.SearchHit) []shopee.ShopID {
	seen := make(map[shopee.ShopID]struct{}, len(hits))
	ids := make([]shopee.ShopID, 0, len(hits))
	for _, h := range hits {
		if !h.ShopID.Valid() {
			continue
		}
		if _, ok := seen[h.ShopID]; ok {
			continue
		}
		seen[h.ShopID] = struct{}{}
		ids = append(ids, h.ShopID)
	}
	return ids
}

// Search is Execute reduced to its records. On failure the ResultSet is empty
// and the error is the single diagnostic for the run.
func (p *Pipeline) Search(ctx context.Context, keyword string, limit int) (ResultSet, error) {
	run, err := p.Execute(ctx, keyword, limit)
	if run == nil {
		return ResultSet{}, err
	}
	return run.Records, err
}

// Execute runs the pipeline and returns the run with its counters. It fails
// closed: whenever err is non-nil, Records is empty.
func (p *Pipeline) Execute(ctx context.Context, keyword string, limit int) (*Run, error) {
	if p.Searcher == nil || p.Resolver == nil {
		return nil, errors.New("pipeline: searcher and resolver are required")
	}
	logger := p.logger()

	run := &Run{
		ID:        uuid.NewString(),
		Keyword:   keyword,
		Limit:     limit,
		Records:   ResultSet{},
		StartedAt: time.Now(),
	}
	defer func() { run.FinishedAt = time.Now() }()

	hits, err := p.Searcher.Search(ctx, keyword, limit)
	if err != nil {
		logger.Error("search failed", "keyword", keyword, "run_id", run.ID, "err", err)
		return run, fmt.Errorf("pipeline: search %q: %w", keyword, err)
	}

	ids := ShopIDs(hits)
	run.Hits = len(hits)
	run.Distinct = len(ids)
	logger.Info("search complete", "keyword", keyword, "run_id", run.ID, "hits", run.Hits, "distinct", run.Distinct)

	if len(ids) == 0 {
		return run, nil
	}

	var resolved []*storage.Storefront
	if p.Concurrency > 1 {
		resolved, err = p.resolveParallel(ctx, run, ids)
	} else {
		resolved, err = p.resolveSequential(ctx, run, ids)
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		logger.Error("run aborted", "keyword", keyword, "run_id", run.ID, "err", err)
		run.Records = ResultSet{}
		return run, fmt.Errorf("pipeline: resolve: %w", err)
	}

	for _, s := range resolved {
		if s == nil {
			continue
		}
		s.ID = uuid.NewString()
		s.RunID = run.ID
		s.Keyword = keyword
		s.CreatedAt = time.Now().UTC()
		run.Records = append(run.Records, *s)
	}

	logger.Info("run complete", "keyword", keyword, "run_id", run.ID,
		"resolved", len(run.Records), "absent", run.Absent, "failed", run.Failed)
	return run, nil
}

type outcome int

const (
	resolvedOutcome outcome = iota
	absentOutcome
	failedOutcome
)

func (p *Pipeline) resolveSequential(ctx context.Context, run *Run, ids []shopee.ShopID) ([]*storage.Storefront, error) {
	limiter := p.limiter()
	out := make([]*storage.Storefront, len(ids))
	for i, id := range ids {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
		var o outcome
		out[i], o = p.resolve(ctx, id)
		run.count(o)
	}
	return out, nil
}

func (p *Pipeline) resolveParallel(ctx context.Context, run *Run, ids []shopee.ShopID) ([]*storage.Storefront, error) {
	limiter := p.limiter()
	out := make([]*storage.Storefront, len(ids))
	outcomes := make([]outcome, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return err
			}
			out[i], outcomes[i] = p.resolve(gctx, id)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, o := range outcomes {
		run.count(o)
	}
	return out, nil
}

func (p *Pipeline) resolve(ctx context.Context, id shopee.ShopID) (*storage.Storefront, outcome) {
	logger := p.logger()

	s, err := p.Resolver.ShopDetail(ctx, id)
	switch {
	case err != nil:
		logger.Warn("shop detail failed, skipping", "shop_id", string(id), "err", err)
		metrics.RecordStorefront(metrics.OutcomeFailed)
		return nil, failedOutcome
	case s == nil:
		logger.Debug("shop detail empty", "shop_id", string(id))
		metrics.RecordStorefront(metrics.OutcomeAbsent)
		return nil, absentOutcome
	}
	metrics.RecordStorefront(metrics.OutcomeResolved)
	return s, resolvedOutcome
}

func (r *Run) count(o outcome) {
	switch o {
	case absentOutcome:
		r.Absent++
	case failedOutcome:
		r.Failed++
	}
}

// Duration is the wall-clock time the run took.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (p *Pipeline) limiter() ratelimit.Waiter {
	if p.Limiter == nil {
		return ratelimit.Nop{}
	}
	return p.Limiter
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}
