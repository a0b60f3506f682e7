// Package sim holds the authoritative scenario state: the simulation clock,
// the asteroid and mitigation parameters, the optional target lock and the
// derived readouts.
//
// Every mutation recomputes the readouts before it returns, so any reader
// sees a snapshot consistent with the latest inputs. State does no I/O and
// takes no locks; callers must not run two mutations at once, and listeners
// registered with Subscribe must not mutate the state they are notified
// about.
package sim

import (
	"fmt"
	"math"
	"time"

	"github.com/star/impactgo/internal/geo"
	"github.com/star/impactgo/internal/hazard"
	"github.com/star/impactgo/internal/trajectory"
)

// Config holds construction-time settings.
type Config struct {
	DurationSeconds float64      // Scenario length (default: 120).
	Epoch           time.Time    // Wall-clock time of elapsed=0, drives Earth rotation (default: zero time).
	Params          *Params      // Initial parameters (default: DefaultParams()).
	Table           hazard.Table // Hazard coefficients (default: hazard.DefaultTable).
}

// Clock is the temporal part of the state.
type Clock struct {
	ElapsedSeconds  float64 `json:"elapsed_seconds"`
	DurationSeconds float64 `json:"duration_seconds"`
	Running         bool    `json:"running"`
}

// Listener receives a snapshot after every mutation.
type Listener func(Snapshot)

// State is the scenario model.
type State struct {
	cfg      Config
	table    hazard.Table
	tableErr error
	params   Params
	clock    Clock
	target   *trajectory.Target
	mode     Mode
	panel    string

	traj     *trajectory.Model
	hazard   hazard.Readouts
	impact   trajectory.Point
	asteroid geo.Vec3
	rotation float64
	revision uint64

	listeners []listenerEntry
	nextID    int
}

type listenerEntry struct {
	id int
	fn Listener
}

// New creates a State with defaults applied and readouts computed. A
// configured table that fails Validate is replaced by hazard.DefaultTable;
// TableError reports why.
func New(cfg Config) *State {
	if !(cfg.DurationSeconds > 0) {
		cfg.DurationSeconds = DefaultDurationSeconds
	}
	params := DefaultParams()
	if cfg.Params != nil {
		params = *cfg.Params
	}
	table := cfg.Table
	var tableErr error
	if table == (hazard.Table{}) {
		table = hazard.DefaultTable
	} else if err := table.Validate(); err != nil {
		tableErr = fmt.Errorf("hazard table rejected, using defaults: %w", err)
		table = hazard.DefaultTable
	}

	s := &State{
		cfg:      cfg,
		table:    table,
		tableErr: tableErr,
		clock: Clock{
			DurationSeconds: Domains[ParamDuration].Clamp(cfg.DurationSeconds, DefaultDurationSeconds),
		},
		mode: ModeScenario,
		traj: trajectory.NewModel(),
	}
	s.params = sanitize(params)
	s.recompute()
	return s
}

// sanitize clamps every field of p into its domain.
func sanitize(p Params) Params {
	d := DefaultParams()
	if _, err := trajectory.ParseKind(string(p.MitigationKind)); err != nil {
		p.MitigationKind = d.MitigationKind
	}
	return Params{
		SizeM:            Domains[ParamSize].Clamp(p.SizeM, d.SizeM),
		SpeedKms:         Domains[ParamSpeed].Clamp(p.SpeedKms, d.SpeedKms),
		DensityKgm3:      Domains[ParamDensity].Clamp(p.DensityKgm3, d.DensityKgm3),
		ApproachAngleDeg: Domains[ParamApproachAngle].Clamp(p.ApproachAngleDeg, d.ApproachAngleDeg),
		MitigationKind:   p.MitigationKind,
		MitigationPower:  Domains[ParamMitigationPower].Clamp(p.MitigationPower, d.MitigationPower),
		LeadTimeSeconds:  Domains[ParamLeadTime].Clamp(p.LeadTimeSeconds, d.LeadTimeSeconds),
	}
}

// AdvanceTime moves the clock forward by deltaSeconds while running. The
// result is clamped to [0, duration]; non-finite deltas are ignored.
func (s *State) AdvanceTime(deltaSeconds float64) {
	if !s.clock.Running || !geo.Finite(deltaSeconds) {
		return
	}
	s.clock.ElapsedSeconds = geo.Clamp(s.clock.ElapsedSeconds+deltaSeconds, 0, s.clock.DurationSeconds)
	s.recompute()
}

// SetParameter clamps value into the named parameter's domain, stores it and
// recomputes. Only an unknown name is an error.
func (s *State) SetParameter(name string, value float64) error {
	p, err := ParseParam(name)
	if err != nil {
		return err
	}

	dom := Domains[p]
	switch p {
	case ParamSize:
		s.params.SizeM = dom.Clamp(value, s.params.SizeM)
	case ParamSpeed:
		s.params.SpeedKms = dom.Clamp(value, s.params.SpeedKms)
	case ParamDensity:
		s.params.DensityKgm3 = dom.Clamp(value, s.params.DensityKgm3)
	case ParamApproachAngle:
		s.params.ApproachAngleDeg = dom.Clamp(value, s.params.ApproachAngleDeg)
	case ParamMitigationPower:
		s.params.MitigationPower = dom.Clamp(value, s.params.MitigationPower)
	case ParamLeadTime:
		s.params.LeadTimeSeconds = dom.Clamp(value, s.params.LeadTimeSeconds)
	case ParamDuration:
		s.clock.DurationSeconds = dom.Clamp(value, s.clock.DurationSeconds)
		s.clock.ElapsedSeconds = math.Min(s.clock.ElapsedSeconds, s.clock.DurationSeconds)
	}

	s.recompute()
	return nil
}

// SetMitigation switches the mitigation strategy.
func (s *State) SetMitigation(kind string) error {
	k, err := trajectory.ParseKind(kind)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownMitigation, kind)
	}
	s.params.MitigationKind = k
	s.recompute()
	return nil
}

// SetTarget locks the impact point to (lat, lon). Latitude is clamped to
// [-90, 90] and longitude wrapped into [-180, 180). If exactly one component
// is non-finite it is taken from the current impact point; if both are, the
// call is rejected and nothing changes.
func (s *State) SetTarget(lat, lon float64) error {
	latOK, lonOK := geo.Finite(lat), geo.Finite(lon)
	if !latOK && !lonOK {
		return ErrInvalidTarget
	}
	if !latOK {
		lat = s.impact.Lat
	}
	if !lonOK {
		lon = s.impact.Lon
	}

	s.target = &trajectory.Target{
		Lat:    geo.Clamp(lat, -90, 90),
		Lon:    geo.NormalizeLon(lon),
		Locked: true,
	}
	s.recompute()
	return nil
}

// ClearTarget drops the target lock.
func (s *State) ClearTarget() {
	if s.target == nil {
		return
	}
	s.target = nil
	s.recompute()
}

// Start sets the clock running.
func (s *State) Start() { s.setRunning(true) }

// Pause stops the clock.
func (s *State) Pause() { s.setRunning(false) }

// ToggleRun flips the running flag.
func (s *State) ToggleRun() { s.setRunning(!s.clock.Running) }

// setRunning changes only the flag; time is unchanged so readouts are too.
// Listeners are still told so that play/pause controls update.
func (s *State) setRunning(running bool) {
	if s.clock.Running == running {
		return
	}
	s.clock.Running = running
	s.revision++
	s.notify()
}

// Reset restarts the clock and clears the target lock. Asteroid and
// mitigation parameters are kept.
func (s *State) Reset() {
	s.clock.ElapsedSeconds = 0
	s.clock.Running = false
	s.target = nil
	s.recompute()
}

// SelectPreset applies a registry preset as one batched update.
func (s *State) SelectPreset(id string) error {
	p, err := LookupPreset(id)
	if err != nil {
		return err
	}
	s.ApplyBundle(p.Bundle)
	return nil
}

// ApplyBundle sets size, speed, density and (optionally) approach angle with
// a single recompute. Zero or NaN fields leave the current value in place.
func (s *State) ApplyBundle(b Bundle) {
	if set(b.SizeM) {
		s.params.SizeM = Domains[ParamSize].Clamp(b.SizeM, s.params.SizeM)
	}
	if set(b.SpeedKms) {
		s.params.SpeedKms = Domains[ParamSpeed].Clamp(b.SpeedKms, s.params.SpeedKms)
	}
	if set(b.DensityKgm3) {
		s.params.DensityKgm3 = Domains[ParamDensity].Clamp(b.DensityKgm3, s.params.DensityKgm3)
	}
	if set(b.ApproachAngleDeg) {
		s.params.ApproachAngleDeg = Domains[ParamApproachAngle].Clamp(b.ApproachAngleDeg, s.params.ApproachAngleDeg)
	}
	s.recompute()
}

func set(v float64) bool {
	return v != 0 && !math.IsNaN(v)
}

// SetMode switches the UI mode. Physics is unaffected.
func (s *State) SetMode(mode string) error {
	m, err := ParseMode(mode)
	if err != nil {
		return err
	}
	if m == s.mode {
		return nil
	}
	s.mode = m
	s.revision++
	s.notify()
	return nil
}

// SetPanel records which side panel is open ("" for none).
func (s *State) SetPanel(panel string) {
	if len(panel) > maxPanelLen {
		panel = panel[:maxPanelLen]
	}
	if panel == s.panel {
		return
	}
	s.panel = panel
	s.revision++
	s.notify()
}

// Subscribe registers fn to run after every mutation, in registration order.
// The returned function removes it.
func (s *State) Subscribe(fn Listener) (cancel func()) {
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})
	return func() {
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// recompute derives every readout from the current inputs, then notifies.
func (s *State) recompute() {
	p := s.params
	s.hazard = s.table.Compute(p.SizeM, p.DensityKgm3, p.SpeedKms)
	s.impact = s.traj.ImpactPoint(trajectory.Input{
		ElapsedSeconds:   s.clock.ElapsedSeconds,
		DurationSeconds:  s.clock.DurationSeconds,
		ApproachAngleDeg: p.ApproachAngleDeg,
		LeadTimeSeconds:  p.LeadTimeSeconds,
		Kind:             p.MitigationKind,
		Power:            p.MitigationPower,
		Target:           s.target,
	})
	s.asteroid = trajectory.ApproachPosition(s.impact, p.ApproachAngleDeg, p.SpeedKms, s.impact.EtaSeconds)
	s.rotation = geo.EarthRotation(s.cfg.Epoch, s.clock.ElapsedSeconds)
	s.revision++
	s.notify()
}

func (s *State) notify() {
	if len(s.listeners) == 0 {
		return
	}
	snap := s.Snapshot()
	for _, l := range s.listeners {
		l.fn(snap)
	}
}
