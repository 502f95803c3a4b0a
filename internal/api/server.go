package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"notionsearch/internal/notion"
	"notionsearch/internal/observability"
	webui "notionsearch/web"
)

// apiError is the error envelope for every JSON route. details is always sent.
type apiError struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Options carries the optional presentation settings of a Server.
type Options struct {
	// DisplayLocation is the zone used for rendered timestamps; nil means local time.
	DisplayLocation *time.Location
	// FrontendDSN is injected into the index page as a sentry-dsn meta tag.
	FrontendDSN string
}

type Server struct {
	mux      *http.ServeMux
	searcher notion.Searcher
	logger   observability.Logger
	metrics  *observability.Metrics
	display  *time.Location
	index    []byte
}

// NewServer creates a new HTTP server with the given dependencies.
// If logger is nil, a default logger will be used.
// If metrics is nil, metrics collection is disabled.
func NewServer(mux *http.ServeMux, searcher notion.Searcher, logger observability.Logger, metrics *observability.Metrics, opts Options) *Server {
	if logger == nil {
		logger = observability.NewLogger(observability.DefaultConfig())
	}
	display := opts.DisplayLocation
	if display == nil {
		display = time.Local
	}
	return &Server{
		mux:      mux,
		searcher: searcher,
		logger:   logger.WithComponent("api"),
		metrics:  metrics,
		display:  display,
		index:    injectFrontendDSN(webui.Index, opts.FrontendDSN),
	}
}

// RegisterRoutes registers every public route on the server mux.
func (s *Server) RegisterRoutes() {
	s.mux.HandleFunc("POST /api/notion/search", s.handleSearch)
	s.mux.HandleFunc("POST /api/notion/search/table", s.handleSearchTable)

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /openapi.yaml", s.handleOpenAPISpec)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}

	s.mux.Handle("GET /static/", noDirListing(http.FileServerFS(webui.Static)))
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
}

// noDirListing answers 404 for directory paths so embedded assets are served
// without an index.
func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeErr(ctx context.Context, w http.ResponseWriter, code int, msg string, details string) {
	fields := []any{
		"status", code,
		"error", msg,
	}
	if details != "" {
		fields = append(fields, "details", details)
	}
	if code >= 500 {
		s.logger.ErrorContext(ctx, "request failed", fields...)
		sentry.CaptureMessage(fmt.Sprintf("HTTP %d: %s (details: %s)", code, msg, details))
	} else {
		s.logger.WarnContext(ctx, "request failed", fields...)
	}
	writeJSON(w, code, apiError{Error: msg, Details: details})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) { s.status = code; s.ResponseWriter.WriteHeader(code) }

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }
