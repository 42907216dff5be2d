package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/FranksOps/shopscout/internal/export"
	"github.com/FranksOps/shopscout/internal/metrics"
	"github.com/FranksOps/shopscout/internal/pipeline"
	"github.com/FranksOps/shopscout/internal/storage"
)

// DefaultLimit is used when a request does not name one.
const DefaultLimit = 10

// NoDataMessage is shown whenever a run yields no storefronts. A blocked
// search and an empty one are reported the same way.
const NoDataMessage = "no data found or request blocked"

// Runner executes one pipeline run.
type Runner interface {
	Execute(ctx context.Context, keyword string, limit int) (*pipeline.Run, error)
}

// Options configures the HTTP layer.
type Options struct {
	AllowedOrigins []string
	// Store, when set, receives every resolved storefront and backs
	// /api/v1/history.
	Store storage.Backend
}

// Server exposes the pipeline over HTTP.
type Server struct {
	runner Runner
	store  storage.Backend
	logger *slog.Logger
	router chi.Router
}

// SearchResponse is the body of GET /api/v1/search.
type SearchResponse struct {
	RunID   string       `json:"run_id,omitempty"`
	Keyword string       `json:"keyword"`
	Count   int          `json:"count"`
	Records []export.Row `json:"records"`
	Message string       `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New wires routes and middleware.
func New(runner Runner, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		runner: runner,
		store:  opts.Store,
		logger: logger,
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/search", s.handleSearch)
		r.Get("/search/export", s.handleExport)
		r.Get("/history", s.handleHistory)
	})

	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	keyword, limit, ok := s.parseRequest(w, r)
	if !ok {
		return
	}

	run, err := s.execute(r.Context(), keyword, limit)

	resp := SearchResponse{
		Keyword: keyword,
		Records: []export.Row{},
	}
	if run != nil {
		resp.RunID = run.ID
		resp.Records = export.Rows(run.Records)
		resp.Count = len(run.Records)
	}
	if err != nil {
		resp.Error = err.Error()
	}
	if resp.Count == 0 {
		resp.Message = NoDataMessage
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	keyword, limit, ok := s.parseRequest(w, r)
	if !ok {
		return
	}

	run, _ := s.execute(r.Context(), keyword, limit)
	if run == nil || len(run.Records) == 0 {
		s.respondError(w, http.StatusNotFound, NoDataMessage)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, run.Records); err != nil {
		s.logger.Error("failed to build workbook", "keyword", keyword, "err", err)
		s.respondError(w, http.StatusInternalServerError, "failed to build workbook")
		return
	}

	w.Header().Set("Content-Type", export.ContentTypeXLSX)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": export.FileName(keyword),
	}))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.respondError(w, http.StatusNotImplemented, "no storage backend configured")
		return
	}

	q := r.URL.Query()
	filter := storage.Filter{
		Keyword: q.Get("keyword"),
		RunID:   q.Get("run_id"),
		Limit:   50,
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = &since
	}

	rows, err := s.store.Query(r.Context(), filter)
	if err != nil {
		s.logger.Error("history query failed", "err", err)
		s.respondError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	if rows == nil {
		rows = []*storage.Storefront{}
	}
	s.respondJSON(w, http.StatusOK, rows)
}

func (s *Server) parseRequest(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	q := r.URL.Query()
	keyword := q.Get("keyword")

	limit := DefaultLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "limit must be an integer")
			return "", 0, false
		}
		limit = n
	}

	if err := pipeline.ValidateRequest(keyword, limit); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return "", 0, false
	}
	return keyword, limit, true
}

// execute runs the pipeline and persists what it produced. Storage failures
// are logged and never change the response.
func (s *Server) execute(ctx context.Context, keyword string, limit int) (*pipeline.Run, error) {
	run, err := s.runner.Execute(ctx, keyword, limit)
	if run == nil || s.store == nil {
		return run, err
	}
	for i := range run.Records {
		if serr := s.store.Save(ctx, &run.Records[i]); serr != nil {
			s.logger.Warn("failed to save storefront", "shop_id", run.Records[i].ShopID, "err", serr)
		}
	}
	return run, err
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "err", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, errorResponse{Error: message})
}

// requestLogger emits one log line per request.
func requestLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := middleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"latency", time.Since(start),
				"bytes", ww.BytesWritten(),
			)
		})
	}
}
