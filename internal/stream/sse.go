// Package stream pushes scenario snapshots to clients. Two transports are
// offered:
//
//   - GET /api/v1/stream/snapshots: Server-Sent Events, read-only.
//   - GET /api/v1/ws: WebSocket, snapshots out and intents in.
//
// SSE message format:
//
//	data: {"type":"snapshot","snapshot":{...},"trail":{"impact":[[lat,lon],...],"asteroid":[[x,y,z],...]}}\n\n
//
// The first message on every connection is metadata:
//
//	data: {"type":"metadata","connection_id":"...","revision":12,"duration_seconds":120,...}\n\n
//
// A snapshot is sent only when the revision has changed since the last one.
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval while idle.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/star/impactgo/internal/driver"
	"github.com/star/impactgo/internal/httputil"
	"github.com/star/impactgo/internal/metrics"
	"github.com/star/impactgo/internal/neo"
)

const (
	defaultIntervalMs = 100
	minIntervalMs     = 33
	maxIntervalMs     = 5000
	defaultTrail      = 20
	maxTrail          = 120
)

// Config holds streaming configuration loaded from environment variables.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxTotal           int           // Max concurrent streams overall (default: 1000).
	KeepaliveInterval  time.Duration // Keep-alive interval (default: 30s).
	TrustProxy         bool          // Take client IPs from proxy headers.
	IntentRate         rate.Limit    // WebSocket intents per second per connection (default: 30).
	IntentBurst        int           // WebSocket intent burst (default: 60).
}

// Handler manages streaming connections.
type Handler struct {
	driver  *driver.Driver
	neo     *neo.Store
	config  Config
	limiter *streamLimiter
	logger  *slog.Logger
}

// NewHandler creates a streaming handler. neoStore may be nil.
func NewHandler(d *driver.Driver, neoStore *neo.Store, config Config, logger *slog.Logger) *Handler {
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	if config.IntentRate <= 0 {
		config.IntentRate = 30
	}
	if config.IntentBurst <= 0 {
		config.IntentBurst = 60
	}
	return &Handler{
		driver:  d,
		neo:     neoStore,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP, config.MaxTotal),
		logger:  logger,
	}
}

// streamParams are the per-connection query options shared by both
// transports.
type streamParams struct {
	interval time.Duration
	trail    int
}

func parseStreamParams(r *http.Request) (streamParams, error) {
	p := streamParams{interval: defaultIntervalMs * time.Millisecond, trail: defaultTrail}

	if v := r.URL.Query().Get("interval_ms"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < minIntervalMs || n > maxIntervalMs {
			return p, fmt.Errorf("invalid interval_ms parameter, must be %d-%d", minIntervalMs, maxIntervalMs)
		}
		p.interval = time.Duration(n) * time.Millisecond
	}
	if v := r.URL.Query().Get("trail"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > maxTrail {
			return p, fmt.Errorf("invalid trail parameter, must be 0-%d", maxTrail)
		}
		p.trail = n
	}
	return p, nil
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// admit applies the concurrency limit. On success the caller must call the
// returned release function.
func (h *Handler) admit(w http.ResponseWriter, r *http.Request, transport string) (ip string, release func(), ok bool) {
	ip = httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"transport", transport,
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Retry-After", "30")
		writeJSONError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return ip, nil, false
	}

	metrics.IncStreamConnections(transport, "connect")
	metrics.IncStreamsActive(transport)
	return ip, func() {
		h.limiter.release(ip)
		metrics.IncStreamConnections(transport, "disconnect")
		metrics.DecStreamsActive(transport)
	}, true
}

// metadata builds the first message of a connection.
func (h *Handler) metadata(connID string) metadataMessage {
	snap := h.driver.Snapshot()
	meta := metadataMessage{
		Type:            "metadata",
		ConnectionID:    connID,
		ServerTime:      time.Now().UTC().Format(time.RFC3339),
		Revision:        snap.Revision,
		DurationSeconds: snap.DurationSeconds,
		NEOAgeSeconds:   -1,
	}
	if hist := h.driver.History(); hist != nil {
		meta.HistoryStepMs = hist.Step().Milliseconds()
	}
	if h.neo != nil {
		if age := h.neo.AgeSeconds(); age >= 0 {
			meta.NEOAgeSeconds = int(age)
		}
	}
	return meta
}

// nextSnapshot returns the snapshot message to send, or false when the
// revision has not moved since lastRev.
func (h *Handler) nextSnapshot(lastRev uint64, first bool, trail int) (snapshotMessage, bool) {
	snap := h.driver.Snapshot()
	if !first && snap.Revision == lastRev {
		return snapshotMessage{}, false
	}
	var kfs []*driver.Keyframe
	if hist := h.driver.History(); hist != nil && trail > 0 {
		kfs = hist.GetRecent(snap.ElapsedSeconds, trail)
	}
	return buildSnapshotMessage(snap, kfs), true
}

// HandleSnapshots serves the SSE snapshot stream.
// GET /api/v1/stream/snapshots?interval_ms=100&trail=20
func (h *Handler) HandleSnapshots(w http.ResponseWriter, r *http.Request) {
	params, err := parseStreamParams(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ip, release, ok := h.admit(w, r, "sse")
	if !ok {
		return
	}
	connID := uuid.NewString()
	startTime := time.Now()
	h.logger.Info("stream connected",
		"transport", "sse",
		"conn_id", connID,
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"interval_ms", params.interval.Milliseconds(),
		"trail", params.trail,
	)

	c := &sseClient{
		w:       w,
		flusher: flusher,
		rc:      http.NewResponseController(w),
		id:      connID,
		logger:  h.logger,
	}

	defer func() {
		release()
		h.logger.Info("stream disconnected",
			"transport", "sse",
			"conn_id", connID,
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
			"messages_sent", c.messagesSent,
			"bytes_sent", c.bytesSent,
		)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Long-lived: clear the server's WriteTimeout for this connection.
	if err := c.rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "conn_id", connID, "error", err)
	}

	// Jittered retry (3-7s) spreads reconnects after a restart.
	fmt.Fprintf(w, "retry: %d\n\n", 3000+rand.Intn(4000))
	flusher.Flush()

	if err := c.sendJSON(h.metadata(connID)); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "conn_id", connID, "error", err)
		return
	}

	ticker := time.NewTicker(params.interval)
	defer ticker.Stop()
	keepalive := time.NewTicker(h.config.KeepaliveInterval)
	defer keepalive.Stop()

	ctx := r.Context()
	var lastRev uint64
	first := true

	send := func() bool {
		msg, changed := h.nextSnapshot(lastRev, first, params.trail)
		if !changed {
			return true
		}
		if err := c.sendJSON(msg); err != nil {
			metrics.IncStreamErrors("send_error")
			h.logger.Warn("stream send error", "conn_id", connID, "error", err)
			return false
		}
		lastRev, first = msg.Snapshot.Revision, false
		keepalive.Reset(h.config.KeepaliveInterval)
		return true
	}

	if !send() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !send() {
				return
			}
		case <-keepalive.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "conn_id", connID, "error", err)
				return
			}
		}
	}
}
