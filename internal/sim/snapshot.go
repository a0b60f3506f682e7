package sim

import (
	"github.com/star/impactgo/internal/trajectory"
)

// Snapshot is the per-frame view consumed by the renderer and streamed to
// clients. It is a value; holding one never aliases the state.
type Snapshot struct {
	Revision uint64 `json:"revision"`

	ElapsedSeconds  float64 `json:"elapsed_seconds"`
	DurationSeconds float64 `json:"duration_seconds"`
	Running         bool    `json:"running"`

	ImpactLat  float64 `json:"impact_lat"`
	ImpactLon  float64 `json:"impact_lon"`
	EtaSeconds float64 `json:"eta_seconds"`

	EnergyMtTNT float64 `json:"energy_mt"`
	CraterKm    float64 `json:"crater_km"`
	BlastKm     float64 `json:"blast_km"`
	SeismicKm   float64 `json:"seismic_km"`
	TsunamiKm   float64 `json:"tsunami_km"`

	SizeM            float64         `json:"size_m"`
	SpeedKms         float64         `json:"speed_kms"`
	DensityKgm3      float64         `json:"density_kgm3"`
	ApproachAngleDeg float64         `json:"approach_angle_deg"`
	MitigationKind   trajectory.Kind `json:"mitigation_kind"`
	MitigationPower  float64         `json:"mitigation_power"`
	LeadTimeSeconds  float64         `json:"lead_time_seconds"`

	Target *trajectory.Target `json:"target,omitempty"`
	Mode   Mode               `json:"mode"`
	Panel  string             `json:"panel,omitempty"`

	EarthRotationRad float64    `json:"earth_rotation_rad"`
	AsteroidECEF     [3]float64 `json:"asteroid_ecef"`
}

// Readouts are the derived display quantities together with the physical
// inputs they were derived from.
type Readouts struct {
	EnergyMtTNT float64 `json:"energy_mt"`
	CraterKm    float64 `json:"crater_km"`
	BlastKm     float64 `json:"blast_km"`
	SeismicKm   float64 `json:"seismic_km"`
	TsunamiKm   float64 `json:"tsunami_km"`
	ImpactLat   float64 `json:"impact_lat"`
	ImpactLon   float64 `json:"impact_lon"`
	EtaSeconds  float64 `json:"eta_seconds"`

	SizeM       float64 `json:"size_m"`
	SpeedKms    float64 `json:"speed_kms"`
	DensityKgm3 float64 `json:"density_kgm3"`
}

// Impact is the subset used by the quiz and map overlays.
type Impact struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	EnergyMtTNT float64 `json:"energy_mt"`
	CraterKm    float64 `json:"crater_km"`
}

// Snapshot returns the current renderer view.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Revision:         s.revision,
		ElapsedSeconds:   s.clock.ElapsedSeconds,
		DurationSeconds:  s.clock.DurationSeconds,
		Running:          s.clock.Running,
		ImpactLat:        s.impact.Lat,
		ImpactLon:        s.impact.Lon,
		EtaSeconds:       s.impact.EtaSeconds,
		EnergyMtTNT:      s.hazard.EnergyMtTNT,
		CraterKm:         s.hazard.CraterKm,
		BlastKm:          s.hazard.BlastKm,
		SeismicKm:        s.hazard.SeismicKm,
		TsunamiKm:        s.hazard.TsunamiKm,
		SizeM:            s.params.SizeM,
		SpeedKms:         s.params.SpeedKms,
		DensityKgm3:      s.params.DensityKgm3,
		ApproachAngleDeg: s.params.ApproachAngleDeg,
		MitigationKind:   s.params.MitigationKind,
		MitigationPower:  s.params.MitigationPower,
		LeadTimeSeconds:  s.params.LeadTimeSeconds,
		Mode:             s.mode,
		Panel:            s.panel,
		EarthRotationRad: s.rotation,
		AsteroidECEF:     s.asteroid.Array(),
	}
	if s.target != nil {
		t := *s.target
		snap.Target = &t
	}
	return snap
}

// Readouts returns the derived quantities.
func (s *State) Readouts() Readouts {
	return s.Snapshot().Readouts()
}

// Readouts extracts the derived quantities from a snapshot.
func (snap Snapshot) Readouts() Readouts {
	return Readouts{
		EnergyMtTNT: snap.EnergyMtTNT,
		CraterKm:    snap.CraterKm,
		BlastKm:     snap.BlastKm,
		SeismicKm:   snap.SeismicKm,
		TsunamiKm:   snap.TsunamiKm,
		ImpactLat:   snap.ImpactLat,
		ImpactLon:   snap.ImpactLon,
		EtaSeconds:  snap.EtaSeconds,
		SizeM:       snap.SizeM,
		SpeedKms:    snap.SpeedKms,
		DensityKgm3: snap.DensityKgm3,
	}
}

// Impact returns the quiz/map view.
func (s *State) Impact() Impact {
	return s.Snapshot().Impact()
}

// Impact extracts the quiz/map view from a snapshot.
func (snap Snapshot) Impact() Impact {
	return Impact{
		Lat:         snap.ImpactLat,
		Lon:         snap.ImpactLon,
		EnergyMtTNT: snap.EnergyMtTNT,
		CraterKm:    snap.CraterKm,
	}
}

// Params returns the current parameters.
func (s *State) Params() Params { return s.params }

// Clock returns the current temporal state.
func (s *State) Clock() Clock { return s.clock }

// Revision increases by at least one on every mutation.
func (s *State) Revision() uint64 { return s.revision }

// TableError reports why a configured hazard table was rejected, or nil.
func (s *State) TableError() error { return s.tableErr }

// TrajectoryFallbacks reports how often the impact point fell back to its
// last valid value.
func (s *State) TrajectoryFallbacks() int64 { return s.traj.Fallbacks() }
