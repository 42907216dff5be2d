package shopee

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/FranksOps/shopscout/internal/blockcheck"
	"github.com/FranksOps/shopscout/internal/metrics"
	"github.com/FranksOps/shopscout/internal/robots"
	"github.com/FranksOps/shopscout/internal/storage"
	"github.com/FranksOps/shopscout/pkg/httpclient"
	"github.com/FranksOps/shopscout/pkg/useragent"
)

const (
	DefaultBaseURL = "https://shopee.co.id"
	DefaultReferer = "https://shopee.co.id/search"

	searchPath     = "/api/v4/search/search_items"
	shopDetailPath = "/api/v4/shop/get_shop_detail"

	searchPageType = "search"
	searchScenario = "PAGE_GLOBAL_SEARCH"

	DefaultSearchTimeout = 10 * time.Second
	DefaultDetailTimeout = 10 * time.Second
)

// Config configures the Shopee API client.
type Config struct {
	// BaseURL is both the API host and the prefix of storefront URLs.
	BaseURL   string
	Referer   string
	UserAgent string
	// UserAgents, when it holds more than one entry, rotates the header per
	// request instead of sending UserAgent.
	UserAgents    []string
	SearchTimeout time.Duration
	DetailTimeout time.Duration
	// RespectRobots checks the host's robots.txt before every request.
	RespectRobots bool
	Transport     http.RoundTripper
}

// Client talks to the two Shopee endpoints the pipeline needs.
type Client struct {
	cfg       Config
	http      *httpclient.Client
	auditor   *robots.Auditor
	uas       *useragent.Pool
	detectors []blockcheck.Detector
	logger    *slog.Logger
}

// NewClient builds a Client, filling defaults for zero-valued fields.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("shopee: invalid base url: %w", err)
	}
	if cfg.Referer == "" {
		cfg.Referer = DefaultReferer
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = DefaultSearchTimeout
	}
	if cfg.DetailTimeout <= 0 {
		cfg.DetailTimeout = DefaultDetailTimeout
	}

	uas := useragent.Static(cfg.UserAgent)
	if len(cfg.UserAgents) > 1 {
		uas = useragent.NewPool(cfg.UserAgents)
	}

	hc, err := httpclient.New(httpclient.Config{
		// Per-call deadlines come from the request context.
		Timeout:      2 * max(cfg.SearchTimeout, cfg.DetailTimeout),
		MaxRedirects: 5,
		UseCookieJar: true,
		Header: http.Header{
			"Referer": {cfg.Referer},
			"Accept":  {"application/json"},
		},
		UserAgents: uas,
		Transport:  cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("shopee: %w", err)
	}

	c := &Client{
		cfg:       cfg,
		http:      hc,
		uas:       uas,
		detectors: blockcheck.DefaultDetectors(),
		logger:    logger,
	}
	if cfg.RespectRobots {
		c.auditor = robots.NewAuditor(hc, logger)
	}
	return c, nil
}

// BaseURL returns the normalised platform base URL.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// Search runs one keyword search at offset 0 and returns the hits that carry
// a seller identifier, in endpoint order and without deduplication.
func (c *Client) Search(ctx context.Context, keyword string, limit int) ([]SearchHit, error) {
	q := url.Values{}
	q.Set("keyword", keyword)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", "0")
	q.Set("page_type", searchPageType)
	q.Set("scenario", searchScenario)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.SearchTimeout)
	defer cancel()

	var body searchResponse
	if err := c.getJSON(ctx, metrics.EndpointSearch, c.cfg.BaseURL+searchPath+"?"+q.Encode(), &body); err != nil {
		return nil, err
	}

	if body.Error != nil && *body.Error != 0 {
		c.logger.Warn("search response carried an error code",
			"keyword", keyword, "code", *body.Error, "msg", deref(body.ErrorMsg))
	}

	hits := body.hits()
	c.logger.Debug("search complete", "keyword", keyword, "items", len(body.Items), "hits", len(hits))
	return hits, nil
}

// ShopDetail resolves a shop identifier into a storefront. It returns
// (nil, nil) when the response has no detail data.
func (c *Client) ShopDetail(ctx context.Context, id ShopID) (*storage.Storefront, error) {
	q := url.Values{}
	q.Set("shopid", string(id))

	ctx, cancel := context.WithTimeout(ctx, c.cfg.DetailTimeout)
	defer cancel()

	var body shopDetailResponse
	if err := c.getJSON(ctx, metrics.EndpointShopDetail, c.cfg.BaseURL+shopDetailPath+"?"+q.Encode(), &body); err != nil {
		return nil, err
	}

	detail, err := decodeShopDetail(body.Data)
	if err != nil {
		return nil, &ResponseError{Endpoint: metrics.EndpointShopDetail, StatusCode: http.StatusOK, Err: fmt.Errorf("%w: data: %v", ErrDecode, err)}
	}
	if detail == nil {
		return nil, nil
	}

	s := detail.storefront(c.cfg.BaseURL, id)
	return &s, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, rawURL string, v any) error {
	ua := c.uas.Next()
	if c.auditor != nil {
		allowed, err := c.auditor.IsAllowed(ctx, rawURL, ua)
		if err != nil {
			return fmt.Errorf("%s: %w", endpoint, err)
		}
		if !allowed {
			return fmt.Errorf("%s: %w", endpoint, ErrDisallowed)
		}
	}

	start := time.Now()
	res, err := c.http.GetAs(ctx, rawURL, ua)
	if err != nil {
		metrics.RecordRequest(endpoint, 0, time.Since(start))
		return fmt.Errorf("%w: %s: %w", ErrTransport, endpoint, err)
	}
	metrics.RecordRequest(endpoint, res.StatusCode, res.Duration)

	if !res.OK() {
		return c.responseError(endpoint, res, ErrStatus)
	}

	if err := json.Unmarshal(res.Body, v); err != nil {
		return c.responseError(endpoint, res, fmt.Errorf("%w: %v", ErrDecode, err))
	}
	return nil
}

func (c *Client) responseError(endpoint string, res *httpclient.Response, cause error) error {
	verdict := blockcheck.Analyze(res, c.detectors)
	if verdict.Blocked {
		metrics.RecordBlocked(verdict.Source)
	}
	return &ResponseError{
		Endpoint:   endpoint,
		StatusCode: res.StatusCode,
		Source:     verdict.Source,
		Title:      verdict.Title,
		Err:        cause,
	}
}
