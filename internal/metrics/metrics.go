package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Endpoint labels.
const (
	EndpointSearch     = "search"
	EndpointShopDetail = "shop_detail"
)

// Storefront outcome labels.
const (
	OutcomeResolved = "resolved"
	OutcomeAbsent   = "absent"
	OutcomeFailed   = "failed"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopscout_requests_total",
			Help: "Total number of Shopee API requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shopscout_request_duration_seconds",
			Help:    "Duration of Shopee API requests in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"endpoint"},
	)

	StorefrontsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopscout_storefronts_total",
			Help: "Shop identifiers processed by resolution outcome",
		},
		[]string{"outcome"},
	)

	BlockedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopscout_blocked_total",
			Help: "Responses classified as bot-protection blocks",
		},
		[]string{"source"},
	)
)

// RecordRequest updates the request counters. status is the HTTP status, or
// 0 when the request never produced a response.
func RecordRequest(endpoint string, status int, d time.Duration) {
	outcome := "error"
	if status > 0 {
		outcome = strconv.Itoa(status)
	}
	RequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	RequestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// RecordStorefront counts one processed shop identifier.
func RecordStorefront(outcome string) {
	StorefrontsTotal.WithLabelValues(outcome).Inc()
}

// RecordBlocked counts one blocked response.
func RecordBlocked(source string) {
	BlockedTotal.WithLabelValues(source).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
