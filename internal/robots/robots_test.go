package robots

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FranksOps/shopscout/pkg/httpclient"
)

func newClient(t *testing.T) *httpclient.Client {
	t.Helper()
	c, err := httpclient.New(httpclient.Config{Timeout: 5 * time.Second, MaxRedirects: 5})
	require.NoError(t, err)
	return c
}

func TestAuditor_IsAllowed(t *testing.T) {
	var fetches atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(`
User-agent: *
Disallow: /api/v4/private/
Allow: /api/v4/search/

User-agent: BadBot
Disallow: /
		`))
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	auditor := NewAuditor(newClient(t), slog.Default())
	ctx := context.Background()

	allowed, err := auditor.IsAllowed(ctx, ts.URL+"/api/v4/search/search_items?keyword=x", "GoodBot")
	require.NoError(t, err)
	assert.True(t, allowed, "search path")

	allowed, err = auditor.IsAllowed(ctx, ts.URL+"/api/v4/private/thing", "GoodBot")
	require.NoError(t, err)
	assert.False(t, allowed, "private path")

	allowed, err = auditor.IsAllowed(ctx, ts.URL+"/api/v4/search/search_items", "BadBot")
	require.NoError(t, err)
	assert.False(t, allowed, "BadBot")

	assert.Equal(t, int32(1), fetches.Load(), "robots.txt fetched once")
}

func TestAuditor_MissingRobotsIsCached(t *testing.T) {
	var fetches atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	auditor := NewAuditor(newClient(t), nil)

	for i := 0; i < 2; i++ {
		allowed, err := auditor.IsAllowed(context.Background(), ts.URL+"/anything", "GoodBot")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	assert.Equal(t, int32(1), fetches.Load())
}

func TestAuditor_ServerErrorIsRetried(t *testing.T) {
	var fetches atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fetches.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /\n"))
	}))
	defer ts.Close()

	auditor := NewAuditor(newClient(t), nil)
	ctx := context.Background()

	allowed, err := auditor.IsAllowed(ctx, ts.URL+"/anything", "GoodBot")
	require.NoError(t, err)
	assert.True(t, allowed, "fails open while robots.txt is unavailable")

	allowed, err = auditor.IsAllowed(ctx, ts.URL+"/anything", "GoodBot")
	require.NoError(t, err)
	assert.False(t, allowed, "later call sees the real rules")
	assert.Equal(t, int32(2), fetches.Load())
}

func TestAuditor_TimeoutIsRetried(t *testing.T) {
	var fetches atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fetches.Add(1) == 1 {
			select {
			case <-time.After(time.Second):
			case <-r.Context().Done():
			}
			return
		}
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /\n"))
	}))
	defer ts.Close()

	auditor := NewAuditor(newClient(t), nil)

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	allowed, err := auditor.IsAllowed(short, ts.URL+"/anything", "GoodBot")
	require.NoError(t, err)
	assert.True(t, allowed, "fails open on a timed out fetch")

	allowed, err = auditor.IsAllowed(context.Background(), ts.URL+"/anything", "GoodBot")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestAuditor_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	auditor := NewAuditor(newClient(t), nil)

	allowed, err := auditor.IsAllowed(context.Background(), url+"/anything", "GoodBot")
	require.NoError(t, err)
	assert.True(t, allowed, "unreachable host fails open")
}

func TestAuditor_InvalidURL(t *testing.T) {
	auditor := NewAuditor(newClient(t), nil)
	_, err := auditor.IsAllowed(context.Background(), "://bad", "GoodBot")
	assert.Error(t, err)
}
