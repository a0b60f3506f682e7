package driver

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/impactgo/internal/metrics"
	"github.com/star/impactgo/internal/sim"
)

// HistoryConfig holds keyframe history configuration loaded from environment
// variables.
type HistoryConfig struct {
	Step   time.Duration // Simulation-time spacing of keyframes (default: 1s).
	Window int           // Keyframes kept behind the newest one (default: 120).
}

// Keyframe is a snapshot recorded at a step boundary of simulation time.
type Keyframe struct {
	Key        time.Duration
	Snapshot   sim.Snapshot
	RecordedAt time.Time
}

// History keeps the most recent keyframes of the running scenario, keyed by
// elapsed simulation time rounded down to the step. A clock that moves
// backwards (reset) discards the history. Safe for concurrent use.
type History struct {
	mu      sync.RWMutex
	entries map[time.Duration]*Keyframe
	newest  time.Duration
	config  HistoryConfig
	logger  *slog.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	rewinds   atomic.Int64
}

// NewHistory creates an empty history.
func NewHistory(config HistoryConfig, logger *slog.Logger) *History {
	if config.Step <= 0 {
		config.Step = time.Second
	}
	if config.Window <= 0 {
		config.Window = 120
	}
	logger.Info("keyframe history initialized",
		"step_ms", config.Step.Milliseconds(),
		"window", config.Window,
	)
	return &History{
		entries: make(map[time.Duration]*Keyframe),
		newest:  -1,
		config:  config,
		logger:  logger,
	}
}

// Step returns the keyframe spacing.
func (h *History) Step() time.Duration {
	return h.config.Step
}

// RoundToStep converts elapsed seconds to a history key.
func (h *History) RoundToStep(elapsedSeconds float64) time.Duration {
	if !(elapsedSeconds > 0) || math.IsInf(elapsedSeconds, 0) {
		return 0
	}
	d := time.Duration(elapsedSeconds * float64(time.Second))
	return d.Truncate(h.config.Step)
}

// Record stores snap under its step key, replacing any earlier snapshot in
// the same step so the entry reflects the latest inputs for that moment.
func (h *History) Record(snap sim.Snapshot) {
	key := h.RoundToStep(snap.ElapsedSeconds)

	h.mu.Lock()
	if key < h.newest {
		h.rewinds.Add(1)
		h.entries = make(map[time.Duration]*Keyframe)
		h.logger.Debug("keyframe history rewound", "from_ms", h.newest.Milliseconds(), "to_ms", key.Milliseconds())
	}
	h.entries[key] = &Keyframe{Key: key, Snapshot: snap, RecordedAt: time.Now()}
	h.newest = key
	removed := h.evictLocked()
	count := len(h.entries)
	h.mu.Unlock()

	if removed > 0 {
		h.evictions.Add(int64(removed))
		metrics.AddKeyframeEvictions(removed)
	}
	metrics.SetKeyframeEntries(count)
}

// evictLocked drops keyframes older than the window. Caller holds mu.
func (h *History) evictLocked() int {
	cutoff := h.newest - time.Duration(h.config.Window)*h.config.Step
	var removed int
	for k := range h.entries {
		if k < cutoff {
			delete(h.entries, k)
			removed++
		}
	}
	return removed
}

// Get returns the keyframe covering elapsedSeconds, or nil.
func (h *History) Get(elapsedSeconds float64) *Keyframe {
	key := h.RoundToStep(elapsedSeconds)

	h.mu.RLock()
	kf, ok := h.entries[key]
	h.mu.RUnlock()

	if ok {
		h.hits.Add(1)
		return kf
	}
	h.misses.Add(1)
	return nil
}

// GetRecent returns up to count keyframes at or before elapsedSeconds,
// ordered oldest-first. Used to build approach trails.
func (h *History) GetRecent(elapsedSeconds float64, count int) []*Keyframe {
	if count <= 0 {
		return nil
	}
	key := h.RoundToStep(elapsedSeconds)

	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]*Keyframe, 0, count)
	for i := count - 1; i >= 0; i-- {
		k := key - time.Duration(i)*h.config.Step
		if k < 0 {
			continue
		}
		if kf, ok := h.entries[k]; ok {
			result = append(result, kf)
		}
	}
	return result
}

// Clear drops every keyframe.
func (h *History) Clear() {
	h.mu.Lock()
	h.entries = make(map[time.Duration]*Keyframe)
	h.newest = -1
	h.mu.Unlock()
	metrics.SetKeyframeEntries(0)
}

// HistoryStats holds history statistics for logs and diagnostics.
type HistoryStats struct {
	Entries   int
	Oldest    time.Duration
	Newest    time.Duration
	Hits      int64
	Misses    int64
	Evictions int64
	Rewinds   int64
}

// Stats returns current history statistics.
func (h *History) Stats() HistoryStats {
	h.mu.RLock()
	count := len(h.entries)
	oldest, newest := time.Duration(-1), time.Duration(-1)
	for k := range h.entries {
		if oldest < 0 || k < oldest {
			oldest = k
		}
		if k > newest {
			newest = k
		}
	}
	h.mu.RUnlock()

	return HistoryStats{
		Entries:   count,
		Oldest:    oldest,
		Newest:    newest,
		Hits:      h.hits.Load(),
		Misses:    h.misses.Load(),
		Evictions: h.evictions.Load(),
		Rewinds:   h.rewinds.Load(),
	}
}
