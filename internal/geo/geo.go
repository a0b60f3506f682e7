// Package geo provides the globe geometry shared by the trajectory model, the
// impact-zone overlay and the renderer snapshot: latitude/longitude domain
// handling, geodetic <-> ECEF conversion, the local tangent basis at a surface
// point and the Earth rotation angle.
//
// Latitude and longitude are in degrees throughout. Longitude is normalised
// into [-180, 180). Latitude used for geometry is kept off the exact poles so
// that the east/north tangent vectors stay well-defined.
package geo

import "math"

const (
	// MaxLat bounds latitudes fed to tangent-basis math.
	MaxLat = 89.999

	// EarthRadiusKm is the mean spherical radius used for surface distances.
	EarthRadiusKm = 6371.0088

	deg2rad = math.Pi / 180.0
	rad2deg = 180.0 / math.Pi
)

// LatLon is a point on the globe in degrees.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Finite reports whether every argument is neither NaN nor ±Inf.
func Finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Clamp limits v to [lo, hi]. NaN is returned unchanged.
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampLat limits a latitude to [-MaxLat, MaxLat].
func ClampLat(lat float64) float64 {
	return Clamp(lat, -MaxLat, MaxLat)
}

// NormalizeLon wraps a longitude into [-180, 180).
func NormalizeLon(lon float64) float64 {
	r := math.Mod(lon+180, 360)
	if r < 0 {
		r += 360
	}
	r -= 180
	// Rounding in Mod/+360 can land exactly on the open bound.
	if r >= 180 {
		r -= 360
	}
	return r
}

// Valid reports whether p is finite and within [-90,90] x [-180,180).
func (p LatLon) Valid() bool {
	return Finite(p.Lat, p.Lon) &&
		p.Lat >= -90 && p.Lat <= 90 &&
		p.Lon >= -180 && p.Lon < 180
}

// Radians returns the latitude and longitude in radians.
func (p LatLon) Radians() (lat, lon float64) {
	return p.Lat * deg2rad, p.Lon * deg2rad
}

// DistanceKm returns the great-circle distance between two points on the
// mean sphere (haversine).
func DistanceKm(a, b LatLon) float64 {
	lat1, lon1 := a.Radians()
	lat2, lon2 := b.Radians()
	dLat := lat2 - lat1
	dLon := lon2 - lon1

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	h = Clamp(h, 0, 1)
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}
