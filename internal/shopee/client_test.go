package shopee

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler, mutate ...func(*Config)) (*Client, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	cfg := Config{BaseURL: ts.URL}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := NewClient(cfg, nil)
	require.NoError(t, err)
	return c, ts
}

func TestSearch_RequestShape(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, searchPath, r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "Keripik Sanjai", q.Get("keyword"))
		assert.Equal(t, "10", q.Get("limit"))
		assert.Equal(t, "0", q.Get("offset"))
		assert.Equal(t, "search", q.Get("page_type"))
		assert.Equal(t, "PAGE_GLOBAL_SEARCH", q.Get("scenario"))
		assert.Equal(t, DefaultReferer, r.Header.Get("Referer"))
		assert.Contains(t, r.Header.Get("User-Agent"), "Chrome/119.0.0.0")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))

	hits, err := c.Search(context.Background(), "Keripik Sanjai", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearch_ParsesHitsInOrder(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[
			{"item_basic":{"shopid":300,"name":"a"}},
			{"item_basic":{"shopid":100}},
			{"item_basic":{}},
			{"ads":true},
			{"item_basic":null},
			{"item_basic":{"shopid":0}},
			{"item_basic":{"shopid":"200"}},
			{"item_basic":{"shopid":300}}
		]}`))
	}))

	hits, err := c.Search(context.Background(), "x", 10)
	require.NoError(t, err)

	var ids []ShopID
	for _, h := range hits {
		ids = append(ids, h.ShopID)
	}
	assert.Equal(t, []ShopID{"300", "100", "200", "300"}, ids)
}

func TestSearch_MissingItemsIsEmpty(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"nomore":true}`))
	}))

	hits, err := c.Search(context.Background(), "x", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearch_Timeout(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}), func(cfg *Config) { cfg.SearchTimeout = 20 * time.Millisecond })

	_, err := c.Search(context.Background(), "x", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSearch_NonJSON(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Shopee Indonesia</title></head></html>`))
	}))

	_, err := c.Search(context.Background(), "x", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecode)
	assert.NotErrorIs(t, err, ErrBlocked)

	var re *ResponseError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "Shopee Indonesia", re.Title)
}

func TestSearch_BlockedStatus(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "cloudflare")
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := c.Search(context.Background(), "x", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStatus)
	assert.ErrorIs(t, err, ErrBlocked)

	var re *ResponseError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusForbidden, re.StatusCode)
	assert.Equal(t, "Cloudflare", re.Source)
	assert.Contains(t, err.Error(), "blocked by Cloudflare")
}

func TestSearch_RobotsDisallow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /api/\n"))
	})
	mux.HandleFunc(searchPath, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("search endpoint must not be called when disallowed")
	})

	c, _ := newTestClient(t, mux, func(cfg *Config) { cfg.RespectRobots = true })

	_, err := c.Search(context.Background(), "x", 10)
	assert.ErrorIs(t, err, ErrDisallowed)
}

func TestSearch_UnusableShopIDsAreSkipped(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[
			{"item_basic":{"shopid":{}}},
			{"item_basic":{"shopid":[]}},
			{"item_basic":{"shopid":true}},
			{"item_basic":"x"},
			{"item_basic":{"shopid":42}}
		]}`))
	}))

	hits, err := c.Search(context.Background(), "x", 10)
	require.NoError(t, err)
	assert.Equal(t, []SearchHit{{ShopID: "42"}}, hits)
}

func TestSearch_RobotsUsesSentUserAgent(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("User-agent: BotB\nDisallow: /api/\n"))
	})
	mux.HandleFunc(searchPath, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("User-Agent"))
		mu.Unlock()
		_, _ = w.Write([]byte(`{"items":[]}`))
	})

	c, _ := newTestClient(t, mux, func(cfg *Config) {
		cfg.RespectRobots = true
		cfg.UserAgents = []string{"BotA", "BotB", "BotC"}
	})

	var disallowed int
	for i := 0; i < 6; i++ {
		_, err := c.Search(context.Background(), "x", 10)
		if errors.Is(err, ErrDisallowed) {
			disallowed++
			continue
		}
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.NotContains(t, seen, "BotB")
	assert.Positive(t, disallowed)
	assert.Equal(t, 6, len(seen)+disallowed)
}

func TestShopDetail_Normalizes(t *testing.T) {
	c, ts := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, shopDetailPath, r.URL.Path)
		assert.Equal(t, "12345", r.URL.Query().Get("shopid"))
		assert.Equal(t, DefaultReferer, r.Header.Get("Referer"))
		_, _ = w.Write([]byte(`{"data":{
			"shopid":12345,
			"name":"Keripik Sanjai Ummi Aufa",
			"account":{"username":"ummiaufa"},
			"place":"KOTA BUKITTINGGI",
			"rating_star":4.56789,
			"item_count":58
		}}`))
	}))

	s, err := c.ShopDetail(context.Background(), "12345")
	require.NoError(t, err)
	require.NotNil(t, s)

	assert.Equal(t, "12345", s.ShopID)
	assert.Equal(t, "Keripik Sanjai Ummi Aufa", s.Name)
	assert.Equal(t, "ummiaufa", s.Username)
	assert.Equal(t, ts.URL+"/ummiaufa", s.URL)
	assert.Equal(t, "KOTA BUKITTINGGI", s.Location)
	assert.Equal(t, 4.57, s.Rating)
	require.NotNil(t, s.ItemCount)
	assert.Equal(t, int64(58), *s.ItemCount)
}

func TestShopDetail_AbsentData(t *testing.T) {
	for _, body := range []string{
		`{}`, `{"data":null}`, `{"data":{}}`, `{"error":4}`,
		`{"data":[]}`, `{"data":""}`, `{"data":false}`, `{"data":0}`,
	} {
		t.Run(body, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))

			s, err := c.ShopDetail(context.Background(), "1")
			require.NoError(t, err)
			assert.Nil(t, s)
		})
	}
}

func TestShopDetail_Failures(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		_, err := c.ShopDetail(context.Background(), "1")
		assert.ErrorIs(t, err, ErrStatus)
	})

	for _, body := range []string{`{"data":[1,2]}`, `{"data":"shop"}`, `{"data":true}`} {
		t.Run(body, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			_, err := c.ShopDetail(context.Background(), "1")
			assert.ErrorIs(t, err, ErrDecode)
		})
	}

	t.Run("transport", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		base := ts.URL
		ts.Close()

		c, err := NewClient(Config{BaseURL: base}, nil)
		require.NoError(t, err)
		_, err = c.ShopDetail(context.Background(), "1")
		assert.ErrorIs(t, err, ErrTransport)
	})
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(Config{BaseURL: "https://shopee.co.id/"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "https://shopee.co.id", c.BaseURL())
	assert.Equal(t, DefaultSearchTimeout, c.cfg.SearchTimeout)
	assert.Equal(t, DefaultDetailTimeout, c.cfg.DetailTimeout)
	assert.Equal(t, DefaultReferer, c.cfg.Referer)
	assert.Nil(t, c.auditor)
}
