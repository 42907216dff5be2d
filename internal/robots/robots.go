package robots

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/FranksOps/shopscout/pkg/httpclient"
	"github.com/temoto/robotstxt"
)

// Auditor fetches robots.txt per host and answers whether a path may be
// requested. Fetch or parse failures fail open.
type Auditor struct {
	client *httpclient.Client
	logger *slog.Logger
	mu     sync.Mutex
	cache  map[string]*robotstxt.RobotsData
}

// NewAuditor creates a new Auditor.
func NewAuditor(client *httpclient.Client, logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		client: client,
		logger: logger,
		cache:  make(map[string]*robotstxt.RobotsData),
	}
}

// IsAllowed determines if targetURL is allowed by its host's robots.txt for
// the provided User-Agent.
func (a *Auditor) IsAllowed(ctx context.Context, targetURL, userAgent string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("robots: invalid url: %w", err)
	}

	data := a.getOrFetch(ctx, u.Scheme+"://"+u.Host)
	if data == nil {
		return true, nil
	}

	return data.FindGroup(userAgent).Test(u.Path), nil
}

func (a *Auditor) getOrFetch(ctx context.Context, host string) *robotstxt.RobotsData {
	a.mu.Lock()
	defer a.mu.Unlock()

	if data, ok := a.cache[host]; ok {
		return data
	}

	// Transport errors and 5xx are retried on the next call; a definite
	// answer (4xx or a parsed file) is kept for the life of the Auditor.
	res, err := a.client.Get(ctx, host+"/robots.txt")
	if err != nil {
		a.logger.Debug("robots.txt fetch failed, defaulting to allow", "host", host, "err", err)
		return nil
	}

	if res.StatusCode >= 500 {
		a.logger.Debug("robots.txt unavailable, defaulting to allow", "host", host, "status", res.StatusCode)
		return nil
	}
	if res.StatusCode >= 400 {
		a.cache[host] = nil
		return nil
	}

	data, err := robotstxt.FromBytes(res.Body)
	if err != nil {
		a.logger.Debug("robots.txt parse failed, defaulting to allow", "host", host, "err", err)
		a.cache[host] = nil
		return nil
	}

	a.cache[host] = data
	return data
}
