package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/star/impactgo/internal/driver"
	"github.com/star/impactgo/internal/geo"
	"github.com/star/impactgo/internal/sim"
	"github.com/star/impactgo/internal/zones"
)

// maxBodyBytes bounds request bodies. Intents are a few hundred bytes.
const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// apply runs an intent and writes the resulting snapshot, or the error.
func (s *Server) apply(w http.ResponseWriter, in driver.Intent) {
	snap, err := s.driver.Apply(in)
	if err != nil {
		switch {
		case errors.Is(err, sim.ErrUnknownPreset):
			writeError(w, http.StatusNotFound, err.Error())
		case driver.IsClientError(err):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("intent failed", "component", "api", "op", in.Op, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.driver.Snapshot())
}

func (s *Server) handleReadouts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.driver.Snapshot().Readouts())
}

func (s *Server) handleImpact(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.driver.Snapshot().Impact())
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sim.Presets())
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	n := zones.DefaultPoints
	if v := r.URL.Query().Get("points"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p < zones.MinPoints || p > zones.MaxPoints {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("points must be an integer in [%d, %d]", zones.MinPoints, zones.MaxPoints))
			return
		}
		n = p
	}
	writeJSON(w, http.StatusOK, zones.Build(s.driver.Snapshot(), n))
}

// handleKeyframe returns the recorded snapshot covering elapsed_seconds.
// GET /api/v1/history?elapsed_seconds=12.5
func (s *Server) handleKeyframe(w http.ResponseWriter, r *http.Request) {
	hist := s.driver.History()
	if hist == nil {
		writeError(w, http.StatusServiceUnavailable, "keyframe history not configured")
		return
	}
	elapsed, err := strconv.ParseFloat(r.URL.Query().Get("elapsed_seconds"), 64)
	if err != nil || !geo.Finite(elapsed) || elapsed < 0 {
		writeError(w, http.StatusBadRequest, "elapsed_seconds must be a finite number >= 0")
		return
	}
	kf := hist.Get(elapsed)
	if kf == nil {
		writeError(w, http.StatusNotFound, "no keyframe recorded for that time")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"key_ms":      kf.Key.Milliseconds(),
		"recorded_at": kf.RecordedAt.UTC().Format(time.RFC3339Nano),
		"snapshot":    kf.Snapshot,
	})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	p := geo.LatLon{Lat: lat, Lon: geo.NormalizeLon(lon)}
	if errLat != nil || errLon != nil || !p.Valid() {
		writeError(w, http.StatusBadRequest, "lat and lon must be finite numbers, lat in [-90, 90]")
		return
	}

	snap := s.driver.Snapshot()
	kind, dist := zones.Classify(snap, p)
	writeJSON(w, http.StatusOK, map[string]any{
		"zone":        kind,
		"distance_km": dist,
		"revision":    snap.Revision,
	})
}

func (s *Server) handleIntent(w http.ResponseWriter, r *http.Request) {
	var in driver.Intent
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.apply(w, in)
}

func (s *Server) handleSetParam(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value *float64 `json:"value"`
		Kind  string   `json:"kind"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.apply(w, driver.Intent{
		Op:    driver.OpSetParameter,
		Name:  r.PathValue("name"),
		Value: body.Value,
		Kind:  body.Kind,
	})
}

func (s *Server) handleSetTarget(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Lat *float64 `json:"lat"`
		Lon *float64 `json:"lon"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.apply(w, driver.Intent{Op: driver.OpSetTarget, Lat: body.Lat, Lon: body.Lon})
}

func (s *Server) handleClearTarget(w http.ResponseWriter, r *http.Request) {
	s.apply(w, driver.Intent{Op: driver.OpClearTarget})
}

var runActions = map[string]driver.Op{
	"start":  driver.OpStart,
	"pause":  driver.OpPause,
	"toggle": driver.OpToggle,
	"reset":  driver.OpReset,
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	op, ok := runActions[r.PathValue("action")]
	if !ok {
		writeError(w, http.StatusNotFound, "action must be one of start, pause, toggle, reset")
		return
	}
	s.apply(w, driver.Intent{Op: op})
}

func (s *Server) handleSelectPreset(w http.ResponseWriter, r *http.Request) {
	s.apply(w, driver.Intent{Op: driver.OpSelectPreset, Preset: r.PathValue("id")})
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode  string  `json:"mode"`
		Panel *string `json:"panel"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.apply(w, driver.Intent{Op: driver.OpSetMode, Mode: body.Mode, Panel: body.Panel})
}
