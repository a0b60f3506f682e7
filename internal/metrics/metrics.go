package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "impactgo_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "impactgo_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// knownRoutes are exact paths reported under their own label.
var knownRoutes = map[string]bool{
	"/":                        true,
	"/healthz":                 true,
	"/readyz":                  true,
	"/metrics":                 true,
	"/api/v1/snapshot":         true,
	"/api/v1/readouts":         true,
	"/api/v1/impact":           true,
	"/api/v1/presets":          true,
	"/api/v1/zones":            true,
	"/api/v1/zones/classify":   true,
	"/api/v1/intents":          true,
	"/api/v1/target":           true,
	"/api/v1/mode":             true,
	"/api/v1/neo/metadata":     true,
	"/api/v1/neo/catalog":      true,
	"/api/v1/neo/fetch":        true,
	"/api/v1/stream/snapshots": true,
	"/api/v1/ws":               true,
}

// paramPrefixes collapse parameterized routes into one label each.
var paramPrefixes = []struct {
	prefix string
	label  string
}{
	{"/api/v1/params/", "/api/v1/params/{name}"},
	{"/api/v1/run/", "/api/v1/run/{action}"},
	{"/api/v1/presets/", "/api/v1/presets/{id}"},
}

// normalizeRoute maps a request path to a bounded set of metric labels so
// scanners and parameterized routes cannot blow up label cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	for _, p := range paramPrefixes {
		if rest, ok := strings.CutPrefix(path, p.prefix); ok && rest != "" && !strings.Contains(rest, "/") {
			return p.label
		}
	}
	if rest, ok := strings.CutPrefix(path, "/api/v1/neo/"); ok {
		if id, ok := strings.CutSuffix(rest, "/apply"); ok && id != "" && !strings.Contains(id, "/") {
			return "/api/v1/neo/{id}/apply"
		}
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the underlying writer so SSE keeps working behind the
// middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack forwards to the underlying writer for WebSocket upgrades.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying %T does not implement http.Hijacker", rw.ResponseWriter)
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
