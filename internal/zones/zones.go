// Package zones turns hazard radii around the impact point into map overlay
// geometry: one closed ring per hazard, and a classifier that tells which
// ring a given coordinate falls inside.
package zones

import (
	"sort"

	"github.com/star/impactgo/internal/geo"
	"github.com/star/impactgo/internal/sim"
)

// Kind names a hazard zone.
type Kind string

const (
	Crater  Kind = "crater"
	Blast   Kind = "blast"
	Tsunami Kind = "tsunami"
	Seismic Kind = "seismic"
	None    Kind = "none"
)

// Point count limits for a ring.
const (
	MinPoints     = 8
	MaxPoints     = 720
	DefaultPoints = 72
)

// Ring is a closed polygon (first point repeated at the end) of the given
// radius around the impact point.
type Ring struct {
	Kind     Kind         `json:"kind"`
	RadiusKm float64      `json:"radius_km"`
	Points   []geo.LatLon `json:"points"`
}

// Overlay is the full impact-zone map layer.
type Overlay struct {
	Center geo.LatLon `json:"center"`
	Rings  []Ring     `json:"rings"`
}

// Radii returns the zone radii of a snapshot, innermost first. The crater
// radius is half its diameter.
func Radii(snap sim.Snapshot) []Ring {
	rings := []Ring{
		{Kind: Crater, RadiusKm: snap.CraterKm / 2},
		{Kind: Blast, RadiusKm: snap.BlastKm},
		{Kind: Tsunami, RadiusKm: snap.TsunamiKm},
		{Kind: Seismic, RadiusKm: snap.SeismicKm},
	}
	sort.SliceStable(rings, func(i, j int) bool { return rings[i].RadiusKm < rings[j].RadiusKm })
	return rings
}

// Build computes every ring with n points each (clamped to
// [MinPoints, MaxPoints]).
func Build(snap sim.Snapshot, n int) Overlay {
	n = clampPoints(n)
	center := geo.LatLon{Lat: snap.ImpactLat, Lon: snap.ImpactLon}

	rings := Radii(snap)
	for i := range rings {
		rings[i].Points = Circle(center, rings[i].RadiusKm, n)
	}
	return Overlay{Center: center, Rings: rings}
}

// Circle returns n+1 points (closed) at radiusKm from center.
func Circle(center geo.LatLon, radiusKm float64, n int) []geo.LatLon {
	n = clampPoints(n)
	if !geo.Finite(radiusKm) || radiusKm < 0 {
		radiusKm = 0
	}

	pts := make([]geo.LatLon, 0, n+1)
	for i := 0; i < n; i++ {
		bearing := 360 * float64(i) / float64(n)
		pts = append(pts, geo.Destination(center, bearing, radiusKm))
	}
	return append(pts, pts[0])
}

// Classify returns the innermost zone containing p, with the distance from
// the impact point.
func Classify(snap sim.Snapshot, p geo.LatLon) (Kind, float64) {
	center := geo.LatLon{Lat: snap.ImpactLat, Lon: snap.ImpactLon}
	d := geo.DistanceKm(center, p)
	for _, r := range Radii(snap) {
		if d <= r.RadiusKm {
			return r.Kind, d
		}
	}
	return None, d
}

func clampPoints(n int) int {
	if n < MinPoints {
		return MinPoints
	}
	if n > MaxPoints {
		return MaxPoints
	}
	return n
}
