package api

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/star/impactgo/internal/auth"
	"github.com/star/impactgo/internal/driver"
	"github.com/star/impactgo/internal/hazard"
	"github.com/star/impactgo/internal/health"
	"github.com/star/impactgo/internal/metrics"
	"github.com/star/impactgo/internal/neo"
	"github.com/star/impactgo/internal/stream"
)

// Config holds HTTP server configuration loaded from environment variables.
type Config struct {
	Addr          string
	Auth          auth.Config
	TrustProxy    bool         // Take client IPs from proxy headers.
	MutationRate  rate.Limit   // Mutating requests per second per IP (default: 30).
	MutationBurst int          // Mutating request burst per IP (default: 60).
	Table         hazard.Table // Coefficients for NEO assessments (default: hazard.DefaultTable).
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	driver     *driver.Driver
	neo        *neo.Service
	table      hazard.Table
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server. neoSvc may be nil, in which
// case the NEO routes answer 503.
func NewServer(cfg Config, d *driver.Driver, neoSvc *neo.Service, streams *stream.Handler, logger *slog.Logger) *Server {
	if !(cfg.MutationRate > 0) {
		cfg.MutationRate = 30
	}
	if cfg.MutationBurst <= 0 {
		cfg.MutationBurst = 60
	}
	if cfg.Table == (hazard.Table{}) {
		cfg.Table = hazard.DefaultTable
	} else if err := cfg.Table.Validate(); err != nil {
		logger.Warn("invalid hazard table, using defaults", "component", "api", "error", err)
		cfg.Table = hazard.DefaultTable
	}

	s := &Server{
		driver: d,
		neo:    neoSvc,
		table:  cfg.Table,
		logger: logger,
	}
	limiter := newIPRateLimiter(cfg.MutationRate, cfg.MutationBurst)
	mut := func(h http.HandlerFunc) http.HandlerFunc {
		return limiter.limit(cfg.TrustProxy, h)
	}

	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(map[string]health.Check{
		"frame_loop": d.Ready,
	}))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /api/v1/readouts", s.handleReadouts)
	mux.HandleFunc("GET /api/v1/impact", s.handleImpact)
	mux.HandleFunc("GET /api/v1/presets", s.handlePresets)
	mux.HandleFunc("GET /api/v1/zones", s.handleZones)
	mux.HandleFunc("GET /api/v1/zones/classify", s.handleClassify)
	mux.HandleFunc("GET /api/v1/history", s.handleKeyframe)

	mux.HandleFunc("POST /api/v1/intents", mut(s.handleIntent))
	mux.HandleFunc("POST /api/v1/params/{name}", mut(s.handleSetParam))
	mux.HandleFunc("POST /api/v1/target", mut(s.handleSetTarget))
	mux.HandleFunc("DELETE /api/v1/target", mut(s.handleClearTarget))
	mux.HandleFunc("POST /api/v1/run/{action}", mut(s.handleRun))
	mux.HandleFunc("POST /api/v1/presets/{id}", mut(s.handleSelectPreset))
	mux.HandleFunc("POST /api/v1/mode", mut(s.handleMode))

	mux.HandleFunc("GET /api/v1/neo/metadata", s.handleNEOMetadata)
	mux.HandleFunc("GET /api/v1/neo/catalog", s.handleNEOCatalog)
	mux.HandleFunc("POST /api/v1/neo/fetch", mut(s.handleNEOFetch))
	mux.HandleFunc("POST /api/v1/neo/{id}/apply", mut(s.handleNEOApply))

	if streams != nil {
		mux.HandleFunc("GET /api/v1/stream/snapshots", streams.HandleSnapshots)
		mux.HandleFunc("GET /api/v1/ws", streams.HandleWebSocket)
	}

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(cfg.Auth)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	sr.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
