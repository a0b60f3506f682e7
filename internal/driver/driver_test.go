package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/star/impactgo/internal/sim"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testDriver(t *testing.T) *Driver {
	t.Helper()
	state := sim.New(sim.Config{DurationSeconds: 120})
	history := NewHistory(HistoryConfig{Step: time.Second, Window: 10}, testLogger())
	return New(state, Config{FrameInterval: 5 * time.Millisecond, TimeScale: 1}, history, testLogger())
}

func f(v float64) *float64 { return &v }

func TestSnapshotPublishedOnConstruction(t *testing.T) {
	d := testDriver(t)
	snap := d.Snapshot()
	if snap.SizeM != 120 || snap.Running {
		t.Errorf("initial snapshot = %+v", snap)
	}
	if d.History().Stats().Entries != 1 {
		t.Errorf("history entries = %d, want 1", d.History().Stats().Entries)
	}
}

func TestStepRespectsRunning(t *testing.T) {
	d := testDriver(t)

	d.Step(100 * time.Millisecond)
	if got := d.Snapshot().ElapsedSeconds; got != 0 {
		t.Errorf("paused step advanced clock to %v", got)
	}

	if _, err := d.Apply(Intent{Op: OpStart}); err != nil {
		t.Fatal(err)
	}
	d.Step(100 * time.Millisecond)
	if got := d.Snapshot().ElapsedSeconds; got < 0.099 || got > 0.101 {
		t.Errorf("elapsed = %v, want 0.1", got)
	}
}

func TestStepCapsDelta(t *testing.T) {
	d := testDriver(t)
	d.Apply(Intent{Op: OpStart})
	d.Step(time.Hour)
	if got := d.Snapshot().ElapsedSeconds; got > maxFrameDelta.Seconds()+1e-9 {
		t.Errorf("elapsed = %v, want <= %v", got, maxFrameDelta.Seconds())
	}
}

func TestTimeScale(t *testing.T) {
	state := sim.New(sim.Config{})
	d := New(state, Config{TimeScale: 10}, nil, testLogger())
	d.Apply(Intent{Op: OpStart})
	d.Step(100 * time.Millisecond)
	if got := d.Snapshot().ElapsedSeconds; got < 0.999 || got > 1.001 {
		t.Errorf("elapsed = %v, want 1", got)
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	d := testDriver(t)
	d.Apply(Intent{Op: OpStart})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()

	time.Sleep(60 * time.Millisecond)
	if err := d.Ready(); err != nil {
		t.Errorf("Ready while running: %v", err)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("frame loop did not stop")
	}
	if !errors.Is(d.Ready(), ErrNotRunning) {
		t.Error("Ready after stop should report ErrNotRunning")
	}
	if d.Frames() == 0 {
		t.Error("no frames applied")
	}
	if d.Snapshot().ElapsedSeconds <= 0 {
		t.Error("clock did not advance")
	}
}

func TestStartLogsHistoryStats(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	history := NewHistory(HistoryConfig{Step: time.Second, Window: 10}, logger)
	d := New(sim.New(sim.Config{DurationSeconds: 120}), Config{FrameInterval: 5 * time.Millisecond, TimeScale: 1}, history, logger)
	history.Get(0)
	history.Get(90)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	var stopped map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("log line %q: %v", line, err)
		}
		if rec["msg"] == "frame loop stopped" {
			stopped = rec
		}
	}
	if stopped == nil {
		t.Fatalf("no shutdown record in %s", buf.String())
	}
	if stopped["keyframes"] != float64(1) || stopped["keyframe_hits"] != float64(1) || stopped["keyframe_misses"] != float64(1) {
		t.Errorf("shutdown record = %v", stopped)
	}
}

func TestApplyIntents(t *testing.T) {
	tests := []struct {
		name  string
		in    Intent
		check func(t *testing.T, s sim.Snapshot)
	}{
		{
			name: "set parameter",
			in:   Intent{Op: OpSetParameter, Name: "size", Value: f(500)},
			check: func(t *testing.T, s sim.Snapshot) {
				if s.SizeM != 500 {
					t.Errorf("size = %v", s.SizeM)
				}
			},
		},
		{
			name: "set parameter clamps",
			in:   Intent{Op: OpSetParameter, Name: "speed", Value: f(1e9)},
			check: func(t *testing.T, s sim.Snapshot) {
				if s.SpeedKms != 100 {
					t.Errorf("speed = %v", s.SpeedKms)
				}
			},
		},
		{
			name: "mitigation through parameter name",
			in:   Intent{Op: OpSetParameter, Name: "mitigationKind", Kind: "laser"},
			check: func(t *testing.T, s sim.Snapshot) {
				if s.MitigationKind != "laser" {
					t.Errorf("kind = %v", s.MitigationKind)
				}
			},
		},
		{
			name: "set target",
			in:   Intent{Op: OpSetTarget, Lat: f(10), Lon: f(200)},
			check: func(t *testing.T, s sim.Snapshot) {
				if s.Target == nil || s.ImpactLat != 10 || s.ImpactLon != -160 {
					t.Errorf("impact = (%v, %v), target %+v", s.ImpactLat, s.ImpactLon, s.Target)
				}
			},
		},
		{
			name: "select preset",
			in:   Intent{Op: OpSelectPreset, Preset: "tunguska"},
			check: func(t *testing.T, s sim.Snapshot) {
				if s.SizeM != 60 || s.SpeedKms != 15 || s.DensityKgm3 != 2200 {
					t.Errorf("params = %v %v %v", s.SizeM, s.SpeedKms, s.DensityKgm3)
				}
			},
		},
		{
			name: "apply bundle",
			in:   Intent{Op: OpApplyBundle, Bundle: &sim.Bundle{SizeM: 42}},
			check: func(t *testing.T, s sim.Snapshot) {
				if s.SizeM != 42 || s.SpeedKms != 18 {
					t.Errorf("params = %v %v", s.SizeM, s.SpeedKms)
				}
			},
		},
		{
			name: "set mode and panel",
			in:   Intent{Op: OpSetMode, Mode: "quiz", Panel: strPtr("readouts")},
			check: func(t *testing.T, s sim.Snapshot) {
				if s.Mode != sim.ModeQuiz || s.Panel != "readouts" {
					t.Errorf("mode = %v panel = %q", s.Mode, s.Panel)
				}
			},
		},
		{
			name: "toggle",
			in:   Intent{Op: OpToggle},
			check: func(t *testing.T, s sim.Snapshot) {
				if !s.Running {
					t.Error("toggle did not start the clock")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testDriver(t)
			snap, err := d.Apply(tt.in)
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			tt.check(t, snap)
			if d.Snapshot().Revision != snap.Revision {
				t.Error("returned snapshot is not the published one")
			}
		})
	}
}

func strPtr(s string) *string { return &s }

func TestApplyRejects(t *testing.T) {
	tests := []struct {
		name string
		in   Intent
		want error
	}{
		{"unknown op", Intent{Op: "explode"}, ErrUnknownIntent},
		{"missing value", Intent{Op: OpSetParameter, Name: "size"}, ErrMissingField},
		{"unknown parameter", Intent{Op: OpSetParameter, Name: "color", Value: f(1)}, sim.ErrUnknownParameter},
		{"unknown mitigation", Intent{Op: OpSetMitigation, Kind: "nuke"}, sim.ErrUnknownMitigation},
		{"unknown preset", Intent{Op: OpSelectPreset, Preset: "nope"}, sim.ErrUnknownPreset},
		{"unknown mode", Intent{Op: OpSetMode, Mode: "arcade"}, sim.ErrUnknownMode},
		{"empty target", Intent{Op: OpSetTarget}, sim.ErrInvalidTarget},
		{"missing bundle", Intent{Op: OpApplyBundle}, ErrMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testDriver(t)
			before := d.Snapshot()
			_, err := d.Apply(tt.in)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if !IsClientError(err) {
				t.Errorf("IsClientError(%v) = false", err)
			}
			if d.Snapshot().Revision != before.Revision {
				t.Error("rejected intent changed the state")
			}
		})
	}
}

func TestResetClearsHistory(t *testing.T) {
	d := testDriver(t)
	d.Apply(Intent{Op: OpStart})
	for i := 0; i < 20; i++ {
		d.Step(200 * time.Millisecond)
	}
	if n := d.History().Stats().Entries; n < 3 {
		t.Fatalf("history entries = %d, want >= 3", n)
	}

	d.Apply(Intent{Op: OpReset})
	stats := d.History().Stats()
	if stats.Entries != 1 || stats.Rewinds != 1 {
		t.Errorf("after reset: %+v", stats)
	}
}

func TestConcurrentIntentsAndFrames(t *testing.T) {
	d := testDriver(t)
	d.Apply(Intent{Op: OpStart})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				d.Apply(Intent{Op: OpSetParameter, Name: "size", Value: f(float64(10 + i*j))})
				d.Step(time.Millisecond)
				_ = d.Snapshot()
			}
		}(i)
	}
	wg.Wait()

	snap := d.Snapshot()
	if snap.ElapsedSeconds <= 0 || snap.ElapsedSeconds > snap.DurationSeconds {
		t.Errorf("elapsed = %v", snap.ElapsedSeconds)
	}
}

func TestApplyReturnsOwnResult(t *testing.T) {
	d := testDriver(t)
	d.Apply(Intent{Op: OpStart})

	var wg sync.WaitGroup
	errs := make(chan string, 8*100)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				size := float64(100 + i*1000 + j)
				snap, err := d.Apply(Intent{Op: OpSetParameter, Name: "size", Value: f(size)})
				if err != nil {
					errs <- err.Error()
					continue
				}
				if snap.SizeM != size {
					errs <- "size mismatch"
				}
				d.Step(time.Millisecond)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Fatalf("Apply returned a snapshot it did not produce: %s", e)
	}

	before := d.Snapshot()
	snap, err := d.Apply(Intent{Op: OpSetParameter, Name: "size"})
	if err == nil {
		t.Fatal("missing value accepted")
	}
	if snap.Revision != before.Revision || snap.SizeM != before.SizeM {
		t.Errorf("rejected intent snapshot = rev %d size %v, want rev %d size %v",
			snap.Revision, snap.SizeM, before.Revision, before.SizeM)
	}
}
