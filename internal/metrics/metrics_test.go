package metrics

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		// Known exact routes.
		{"/healthz", "/healthz"},
		{"/readyz", "/readyz"},
		{"/metrics", "/metrics"},
		{"/api/v1/snapshot", "/api/v1/snapshot"},
		{"/api/v1/zones/classify", "/api/v1/zones/classify"},
		{"/api/v1/stream/snapshots", "/api/v1/stream/snapshots"},
		{"/api/v1/presets", "/api/v1/presets"},

		// Parameterized routes collapse to one label.
		{"/api/v1/params/size", "/api/v1/params/{name}"},
		{"/api/v1/params/mitigationKind", "/api/v1/params/{name}"},
		{"/api/v1/run/start", "/api/v1/run/{action}"},
		{"/api/v1/presets/apophis", "/api/v1/presets/{id}"},
		{"/api/v1/neo/3542519/apply", "/api/v1/neo/{id}/apply"},

		// Unknown/bot paths collapse to "other".
		{"/wp-admin", "other"},
		{"/.env", "other"},
		{"/api/v1/params/", "other"},
		{"/api/v1/params/a/b", "other"},
		{"/api/v1/neo//apply", "other"},
		{"/api/v2/something", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := normalizeRoute(tt.path); got != tt.want {
				t.Errorf("normalizeRoute(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

// TestMetricsCardinality verifies that 100 parameter names produce exactly
// one path label.
func TestMetricsCardinality(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		seen[normalizeRoute("/api/v1/params/p"+strconv.Itoa(i))] = true
	}
	if len(seen) != 1 {
		t.Errorf("expected 1 unique label, got %d: %v", len(seen), seen)
	}
}

func TestMiddlewareKeepsFlusher(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := w.(http.Flusher); !ok {
			t.Error("wrapped writer lost http.Flusher")
		}
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/snapshot", nil))
	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTeapot)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	IncIntent("start", "ok")
	SetSimState(12, true, 105)

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	body := w.Body.String()
	for _, name := range []string{"impactgo_intents_total", "impactgo_sim_elapsed_seconds", "impactgo_sim_running"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
