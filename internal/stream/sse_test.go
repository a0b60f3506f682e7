package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/star/impactgo/internal/driver"
	"github.com/star/impactgo/internal/sim"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

func testDriver() *driver.Driver {
	state := sim.New(sim.Config{DurationSeconds: 120})
	history := driver.NewHistory(driver.HistoryConfig{Step: time.Second, Window: 30}, testLogger())
	return driver.New(state, driver.Config{}, history, testLogger())
}

func testConfig() Config {
	return Config{
		MaxConcurrentPerIP: 10,
		KeepaliveInterval:  30 * time.Second,
	}
}

func TestBuildSnapshotMessage(t *testing.T) {
	d := testDriver()
	d.Apply(driver.Intent{Op: driver.OpStart})
	for i := 0; i < 12; i++ {
		d.Step(250 * time.Millisecond)
	}
	snap := d.Snapshot()
	kfs := d.History().GetRecent(snap.ElapsedSeconds, 5)

	msg := buildSnapshotMessage(snap, kfs)
	if msg.Type != "snapshot" {
		t.Errorf("type = %q, want snapshot", msg.Type)
	}
	if msg.Trail == nil || len(msg.Trail.Impact) != len(kfs) || len(msg.Trail.Asteroid) != len(kfs) {
		t.Fatalf("trail = %+v, want %d points", msg.Trail, len(kfs))
	}
	if len(kfs) != 4 {
		t.Errorf("keyframes = %d, want 4 (0s..3s)", len(kfs))
	}
	last := kfs[len(kfs)-1].Snapshot
	if got := msg.Trail.Impact[len(kfs)-1]; got != [2]float64{last.ImpactLat, last.ImpactLon} {
		t.Errorf("last trail point = %v", got)
	}

	if msg := buildSnapshotMessage(snap, nil); msg.Trail != nil {
		t.Error("trail should be omitted without keyframes")
	}
}

func TestSnapshotMessageJSON(t *testing.T) {
	msg := buildSnapshotMessage(testDriver().Snapshot(), nil)
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}

	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatal(err)
	}
	if parsed["type"] != "snapshot" {
		t.Errorf("type = %v", parsed["type"])
	}
	if _, ok := parsed["trail"]; ok {
		t.Error("empty trail should be omitted")
	}
	snap, ok := parsed["snapshot"].(map[string]any)
	if !ok {
		t.Fatalf("snapshot = %v", parsed["snapshot"])
	}
	for _, key := range []string{"elapsed_seconds", "impact_lat", "impact_lon", "blast_km", "asteroid_ecef", "mitigation_kind"} {
		if _, ok := snap[key]; !ok {
			t.Errorf("snapshot missing %s", key)
		}
	}
}

// readSSE runs the handler until ctx expires and returns the data messages.
func readSSE(t *testing.T, h *Handler, query string, timeout time.Duration) (*http.Response, string, []map[string]any) {
	t.Helper()
	req := httptest.NewRequest("GET", "/api/v1/stream/snapshots"+query, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	ctx, cancel := context.WithTimeout(req.Context(), timeout)
	defer cancel()
	req = req.WithContext(ctx)

	w := httptest.NewRecorder()
	h.HandleSnapshots(w, req)

	body := w.Body.String()
	var msgs []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if jsonStr, ok := strings.CutPrefix(line, "data: "); ok {
			var msg map[string]any
			if err := json.Unmarshal([]byte(jsonStr), &msg); err != nil {
				t.Errorf("invalid JSON in SSE data line: %v", err)
				continue
			}
			msgs = append(msgs, msg)
		}
	}
	return w.Result(), body, msgs
}

// TestSSEMessageFormat verifies the SSE wire format: "data: {json}\n\n".
func TestSSEMessageFormat(t *testing.T) {
	h := NewHandler(testDriver(), nil, testConfig(), testLogger())
	resp, body, msgs := readSSE(t, h, "?interval_ms=50", 300*time.Millisecond)

	if resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", resp.Header.Get("Content-Type"))
	}
	if resp.Header.Get("Cache-Control") != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", resp.Header.Get("Cache-Control"))
	}

	if len(msgs) < 2 {
		t.Fatalf("messages = %d, want metadata + snapshot", len(msgs))
	}
	meta := msgs[0]
	if meta["type"] != "metadata" {
		t.Fatalf("first message type = %v, want metadata", meta["type"])
	}
	if id, _ := meta["connection_id"].(string); len(id) != 36 {
		t.Errorf("connection_id = %v, want a UUID", meta["connection_id"])
	}
	if meta["duration_seconds"].(float64) != 120 {
		t.Errorf("duration_seconds = %v", meta["duration_seconds"])
	}
	if meta["neo_age_seconds"].(float64) != -1 {
		t.Errorf("neo_age_seconds = %v, want -1 without a store", meta["neo_age_seconds"])
	}
	if msgs[1]["type"] != "snapshot" {
		t.Errorf("second message type = %v, want snapshot", msgs[1]["type"])
	}

	// The paused scenario does not change, so exactly one snapshot is sent.
	if len(msgs) != 2 {
		t.Errorf("messages = %d, want 2 for an unchanged revision", len(msgs))
	}

	for _, line := range strings.Split(body, "\n") {
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data: ") && !strings.HasPrefix(line, "retry: ") && line != ":" {
			t.Errorf("unexpected SSE line: %q", line)
		}
	}
}

func TestSSESendsOnRevisionChange(t *testing.T) {
	d := testDriver()
	h := NewHandler(d, nil, testConfig(), testLogger())

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		size := 100.0
		for {
			select {
			case <-stop:
				return
			case <-time.After(20 * time.Millisecond):
				size += 10
				v := size
				d.Apply(driver.Intent{Op: driver.OpSetParameter, Name: "size", Value: &v})
			}
		}
	}()

	_, _, msgs := readSSE(t, h, "?interval_ms=40&trail=0", 400*time.Millisecond)
	close(stop)
	wg.Wait()

	var snapshots int
	var lastRev float64
	for _, m := range msgs {
		if m["type"] != "snapshot" {
			continue
		}
		snapshots++
		rev := m["snapshot"].(map[string]any)["revision"].(float64)
		if rev <= lastRev {
			t.Errorf("revision %v not increasing after %v", rev, lastRev)
		}
		lastRev = rev
		if _, ok := m["trail"]; ok {
			t.Error("trail sent with trail=0")
		}
	}
	if snapshots < 3 {
		t.Errorf("snapshots = %d, want several as the revision moves", snapshots)
	}
}

// TestRateLimiting verifies per-IP concurrent stream limits.
func TestRateLimiting(t *testing.T) {
	limiter := newStreamLimiter(3, 0)

	for i := 0; i < 3; i++ {
		if !limiter.acquire("10.0.0.1") {
			t.Fatalf("acquire %d should succeed", i+1)
		}
	}
	if limiter.acquire("10.0.0.1") {
		t.Error("acquire beyond limit should fail")
	}
	if !limiter.acquire("10.0.0.2") {
		t.Error("different IP should not be rate limited")
	}

	limiter.release("10.0.0.1")
	if !limiter.acquire("10.0.0.1") {
		t.Error("acquire after release should succeed")
	}

	if c := limiter.count("10.0.0.1"); c != 3 {
		t.Errorf("count = %d, want 3", c)
	}
	if c := limiter.count("10.0.0.2"); c != 1 {
		t.Errorf("count = %d, want 1", c)
	}

	// Unbalanced release is ignored.
	limiter.release("10.0.0.9")
	if limiter.total != 4 {
		t.Errorf("total = %d, want 4", limiter.total)
	}
}

func TestRateLimitingGlobalCap(t *testing.T) {
	limiter := newStreamLimiter(10, 2)
	if !limiter.acquire("a") || !limiter.acquire("b") {
		t.Fatal("first two acquires should succeed")
	}
	if limiter.acquire("c") {
		t.Error("acquire beyond global cap should fail")
	}
}

// TestRateLimitingConcurrent verifies rate limiter thread safety.
func TestRateLimitingConcurrent(t *testing.T) {
	limiter := newStreamLimiter(100, 0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.acquire("10.0.0.1") {
				defer limiter.release("10.0.0.1")
				time.Sleep(10 * time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if c := limiter.count("10.0.0.1"); c != 0 {
		t.Errorf("count after all released = %d, want 0", c)
	}
}

// TestRateLimitHTTPResponse verifies 429 response when limit exceeded.
func TestRateLimitHTTPResponse(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentPerIP = 1
	h := NewHandler(testDriver(), nil, cfg, testLogger())

	ready := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest("GET", "/api/v1/stream/snapshots", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		ctx, cancel := context.WithCancel(req.Context())
		req = req.WithContext(ctx)

		go func() {
			time.Sleep(50 * time.Millisecond)
			close(ready)
			time.Sleep(200 * time.Millisecond)
			cancel()
		}()

		h.HandleSnapshots(httptest.NewRecorder(), req)
	}()

	<-ready

	req := httptest.NewRequest("GET", "/api/v1/stream/snapshots", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	w := httptest.NewRecorder()
	h.HandleSnapshots(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	<-done
}

// TestInvalidQueryParams verifies error responses for bad interval/trail values.
func TestInvalidQueryParams(t *testing.T) {
	h := NewHandler(testDriver(), nil, testConfig(), testLogger())

	tests := []struct {
		name  string
		query string
	}{
		{"interval too small", "?interval_ms=1"},
		{"interval too large", "?interval_ms=60000"},
		{"interval non-numeric", "?interval_ms=abc"},
		{"negative trail", "?trail=-1"},
		{"trail too large", "?trail=500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/stream/snapshots"+tt.query, nil)
			req.RemoteAddr = "127.0.0.1:12345"
			w := httptest.NewRecorder()
			h.HandleSnapshots(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}
