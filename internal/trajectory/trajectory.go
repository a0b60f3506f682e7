// Package trajectory computes where the asteroid lands at a given moment of
// the scenario and how long until it does.
//
// The terminal point starts at a fixed reference coordinate. Two effects move
// it over time: a small latitude bias from the approach angle, growing with
// normalised elapsed time, and the mitigation drift, which only acts during
// the final lead-time window before nominal impact. A locked target replaces
// the whole computation: the locked coordinate is the impact point, with
// neither drift nor bias applied.
package trajectory

import (
	"fmt"
	"math"
	"strings"

	"github.com/star/impactgo/internal/geo"
)

// Reference is the default terminal impact point (mid-Atlantic).
var Reference = geo.LatLon{Lat: 20.0, Lon: -40.0}

// AngleBiasDeg is the latitude shift, in degrees, produced at full elapsed
// time by an approach angle 90° away from the 45° neutral angle.
const AngleBiasDeg = 4.0

// MinWindowSeconds is the smallest mitigation window.
const MinWindowSeconds = 1.0

// Kind is a mitigation strategy.
type Kind string

const (
	Kinetic Kind = "kinetic"
	Tractor Kind = "tractor"
	Laser   Kind = "laser"
)

// Kinds lists the supported strategies.
var Kinds = []Kind{Kinetic, Tractor, Laser}

// Rate is the per-axis drift, in degrees, at full mitigation drift.
type Rate struct {
	Lat float64
	Lon float64
}

// Magnitude returns the combined drift of both axes.
func (r Rate) Magnitude() float64 {
	return math.Hypot(r.Lat, r.Lon)
}

// DriftRates holds the per-kind multipliers. The magnitudes are ordered
// kinetic > laser > tractor: a kinetic impactor moves the point far but
// coarsely, a laser mostly pushes along one axis, a gravity tractor is gentle
// and symmetric.
var DriftRates = map[Kind]Rate{
	Kinetic: {Lat: 6.0, Lon: 9.0},
	Laser:   {Lat: 1.5, Lon: 5.0},
	Tractor: {Lat: 2.0, Lon: 2.0},
}

// ParseKind converts a strategy name to a Kind. Matching ignores case and
// accepts the long names used by the UI.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "kinetic", "kinetic_impactor", "kinetic-impactor":
		return Kinetic, nil
	case "tractor", "gravity_tractor", "gravity-tractor":
		return Tractor, nil
	case "laser", "laser_ablation", "laser-ablation":
		return Laser, nil
	}
	return "", fmt.Errorf("unknown mitigation kind %q", s)
}

// Target is a user-picked terminal coordinate.
type Target struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Locked bool    `json:"locked"`
}

// Input is everything the impact point depends on.
type Input struct {
	ElapsedSeconds   float64
	DurationSeconds  float64
	ApproachAngleDeg float64
	LeadTimeSeconds  float64
	Kind             Kind
	Power            float64
	Target           *Target
}

// Point is the computed impact coordinate and time to impact.
type Point struct {
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	EtaSeconds float64 `json:"eta_seconds"`
}

// LatLon returns the coordinate part of p.
func (p Point) LatLon() geo.LatLon {
	return geo.LatLon{Lat: p.Lat, Lon: p.Lon}
}

// Model evaluates impact points and remembers the last valid output so that
// transient bad input (a half-typed slider value, a NaN from upstream) never
// reaches consumers. A Model is not safe for concurrent use.
type Model struct {
	last      Point
	fallbacks int64
}

// NewModel returns a model whose initial fallback is the reference point.
func NewModel() *Model {
	return &Model{last: Point{Lat: Reference.Lat, Lon: Reference.Lon}}
}

// Last returns the most recent valid output.
func (m *Model) Last() Point {
	return m.last
}

// Fallbacks returns how many calls degraded to the last valid output.
func (m *Model) Fallbacks() int64 {
	return m.fallbacks
}

// ImpactPoint computes the terminal impact point for in. It never fails:
// invalid input returns the last valid output.
func (m *Model) ImpactPoint(in Input) Point {
	p, ok := compute(in)
	if !ok {
		m.fallbacks++
		return m.last
	}
	m.last = p
	return p
}

// compute is the pure evaluation. ok is false when the input or the result
// is not usable.
func compute(in Input) (Point, bool) {
	if !geo.Finite(in.ElapsedSeconds, in.DurationSeconds, in.ApproachAngleDeg, in.LeadTimeSeconds, in.Power) {
		return Point{}, false
	}

	elapsed := math.Max(0, in.ElapsedSeconds)
	duration := in.DurationSeconds
	eta := math.Max(0, duration-elapsed)

	if t := in.Target; t != nil && t.Locked {
		if !geo.Finite(t.Lat, t.Lon) {
			return Point{}, false
		}
		return Point{
			Lat:        geo.ClampLat(t.Lat),
			Lon:        geo.NormalizeLon(t.Lon),
			EtaSeconds: eta,
		}, true
	}

	lat := Reference.Lat
	lon := Reference.Lon

	angle := geo.Clamp(in.ApproachAngleDeg, 0, 90)
	lat += AngleBiasDeg * (angle - 45) / 90 * normalizedTime(elapsed, duration)

	drift := Drift(elapsed, duration, in.LeadTimeSeconds, in.Power)
	if drift > 0 {
		rate := DriftRates[in.Kind]
		lat += drift * rate.Lat
		lon += drift * rate.Lon
	}

	if !geo.Finite(lat, lon, eta) {
		return Point{}, false
	}

	return Point{
		Lat:        geo.ClampLat(lat),
		Lon:        geo.NormalizeLon(lon),
		EtaSeconds: eta,
	}, true
}

// Drift returns the effective mitigation drift in [0, 1]: the normalised
// power scaled by progress through the final lead-time window.
func Drift(elapsed, duration, leadTime, power float64) float64 {
	window := math.Max(MinWindowSeconds, leadTime)
	activationStart := duration - window
	if !(elapsed > activationStart) {
		return 0
	}
	progress := geo.Clamp((elapsed-activationStart)/window, 0, 1)
	return geo.Clamp(power, 0, 1) * progress
}

// normalizedTime returns elapsed/duration clamped to [0, 1]. A non-positive
// duration counts as complete.
func normalizedTime(elapsed, duration float64) float64 {
	if duration <= 0 {
		return 1
	}
	return geo.Clamp(elapsed/duration, 0, 1)
}
