// Package driver owns the scenario state for the service. It advances the
// simulation clock from a ticker goroutine, serializes every mutation
// (frame ticks, HTTP and WebSocket intents) behind one mutex, and publishes
// the latest snapshot through an atomic pointer so readers never block the
// frame loop.
package driver

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/impactgo/internal/metrics"
	"github.com/star/impactgo/internal/sim"
)

// maxFrameDelta caps the wall-clock delta applied in one tick, so a stalled
// process resumes where it left off instead of jumping to the end.
const maxFrameDelta = 250 * time.Millisecond

// Config holds frame loop configuration loaded from environment variables.
type Config struct {
	FrameInterval time.Duration // Tick period (default: 33ms).
	TimeScale     float64       // Simulated seconds per wall-clock second (default: 1).
}

// Driver runs a sim.State on behalf of concurrent callers.
type Driver struct {
	mu    sync.Mutex
	state *sim.State

	latest  atomic.Pointer[sim.Snapshot]
	history *History
	config  Config
	logger  *slog.Logger

	frames  atomic.Int64
	running atomic.Bool
}

// ErrNotRunning is reported by Ready before Start or after it returns.
var ErrNotRunning = errors.New("frame loop not running")

// New wraps state. history may be nil when trails are not needed.
func New(state *sim.State, config Config, history *History, logger *slog.Logger) *Driver {
	if config.FrameInterval <= 0 {
		config.FrameInterval = 33 * time.Millisecond
	}
	if !(config.TimeScale > 0) {
		config.TimeScale = 1
	}

	d := &Driver{
		state:   state,
		history: history,
		config:  config,
		logger:  logger,
	}
	state.Subscribe(d.publish)
	d.publish(state.Snapshot())
	return d
}

// publish runs inside every mutation while mu is held.
func (d *Driver) publish(snap sim.Snapshot) {
	d.latest.Store(&snap)
	if d.history != nil {
		d.history.Record(snap)
	}
	metrics.SetSimState(snap.ElapsedSeconds, snap.Running, snap.EnergyMtTNT)
	metrics.SetTrajectoryFallbacks(d.state.TrajectoryFallbacks())
}

// Snapshot returns the latest published snapshot without locking.
func (d *Driver) Snapshot() sim.Snapshot {
	return *d.latest.Load()
}

// History returns the keyframe history, or nil.
func (d *Driver) History() *History {
	return d.history
}

// Frames reports how many ticks the loop has applied.
func (d *Driver) Frames() int64 {
	return d.frames.Load()
}

// Ready reports whether the frame loop is running.
func (d *Driver) Ready() error {
	if !d.running.Load() {
		return ErrNotRunning
	}
	return nil
}

// Do runs fn with exclusive access to the state. fn must not retain s.
func (d *Driver) Do(fn func(s *sim.State) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn(d.state)
}

// Step advances the clock by a wall-clock delta scaled by TimeScale.
func (d *Driver) Step(delta time.Duration) {
	if delta <= 0 {
		return
	}
	if delta > maxFrameDelta {
		delta = maxFrameDelta
	}
	start := time.Now()

	d.mu.Lock()
	d.state.AdvanceTime(delta.Seconds() * d.config.TimeScale)
	d.mu.Unlock()

	d.frames.Add(1)
	metrics.RecordFrame(time.Since(start))
}

// Start runs the frame loop. Blocks until ctx is cancelled.
func (d *Driver) Start(ctx context.Context) {
	d.logger.Info("frame loop started",
		"frame_interval_ms", d.config.FrameInterval.Milliseconds(),
		"time_scale", d.config.TimeScale,
	)

	ticker := time.NewTicker(d.config.FrameInterval)
	defer ticker.Stop()

	d.running.Store(true)
	defer d.running.Store(false)

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			args := []any{"frames", d.frames.Load()}
			if d.history != nil {
				st := d.history.Stats()
				args = append(args,
					"keyframes", st.Entries,
					"keyframe_hits", st.Hits,
					"keyframe_misses", st.Misses,
					"keyframe_evictions", st.Evictions,
					"keyframe_rewinds", st.Rewinds,
				)
			}
			d.logger.Info("frame loop stopped", args...)
			return
		case now := <-ticker.C:
			delta := now.Sub(last)
			last = now
			d.Step(delta)
		}
	}
}
