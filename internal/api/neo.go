package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/star/impactgo/internal/driver"
	"github.com/star/impactgo/internal/neo"
)

const (
	defaultCatalogLimit = 50
	maxCatalogLimit     = 500
	assessWorkers       = 4

	// neoFetchTimeout bounds an on-demand refresh. The response deadline is
	// pushed past it so the result is still written when the upstream is
	// slower than the server's WriteTimeout.
	neoFetchTimeout  = 30 * time.Second
	neoFetchWriteGap = 5 * time.Second
)

// dataset returns the loaded NEO dataset, writing 503 when there is none.
func (s *Server) dataset(w http.ResponseWriter) (*neo.Dataset, bool) {
	if s.neo == nil {
		writeError(w, http.StatusServiceUnavailable, "NEO catalog not configured")
		return nil, false
	}
	ds := s.neo.Store().Get()
	if ds == nil {
		writeError(w, http.StatusServiceUnavailable, "NEO data not yet loaded")
		return nil, false
	}
	return ds, true
}

func (s *Server) handleNEOMetadata(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.dataset(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"source":        ds.Source,
		"fetched_at":    ds.FetchedAt.UTC().Format(time.RFC3339),
		"count":         len(ds.Objects),
		"age_seconds":   s.neo.Store().AgeSeconds(),
		"stale":         s.neo.Stale(),
		"fetch_enabled": s.neo.Config().EnableFetch,
	})
}

func (s *Server) handleNEOCatalog(w http.ResponseWriter, r *http.Request) {
	limit := defaultCatalogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxCatalogLimit {
			writeError(w, http.StatusBadRequest, "limit must be an integer in [1, 500]")
			return
		}
		limit = n
	}

	ds, ok := s.dataset(w)
	if !ok {
		return
	}

	ranked := neo.Assess(r.Context(), ds.Objects, s.table, assessWorkers)
	if err := r.Context().Err(); err != nil {
		return
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(ranked),
		"total":   len(ds.Objects),
		"objects": ranked,
	})
}

func (s *Server) handleNEOFetch(w http.ResponseWriter, r *http.Request) {
	if s.neo == nil {
		writeError(w, http.StatusServiceUnavailable, "NEO catalog not configured")
		return
	}
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Now().Add(neoFetchTimeout + neoFetchWriteGap)); err != nil {
		s.logger.Debug("cannot extend write deadline", "component", "api", "error", err)
	}
	ctx, cancel := context.WithTimeout(r.Context(), neoFetchTimeout)
	defer cancel()

	ds, err := s.neo.Refresh(ctx)
	if err != nil {
		if errors.Is(err, neo.ErrFetchDisabled) {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		s.logger.Warn("NEO refresh failed", "component", "api", "error", err)
		writeError(w, http.StatusBadGateway, "NEO fetch failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"source":     ds.Source,
		"fetched_at": ds.FetchedAt.UTC().Format(time.RFC3339),
		"count":      len(ds.Objects),
	})
}

func (s *Server) handleNEOApply(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.dataset(w)
	if !ok {
		return
	}
	obj, found := ds.Find(r.PathValue("id"))
	if !found {
		writeError(w, http.StatusNotFound, "NEO not found")
		return
	}
	bundle := obj.Bundle()
	s.apply(w, driver.Intent{Op: driver.OpApplyBundle, Bundle: &bundle})
}
