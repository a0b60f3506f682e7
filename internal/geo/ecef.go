package geo

import "math"

// WGS-84 ellipsoid parameters.
const (
	wgs84A  = 6378137.0             // semi-major axis (meters)
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

// degenerateTangent is the length below which z × n is treated as zero.
const degenerateTangent = 1e-9

// Vec3 is a Cartesian vector (ECEF or inertial, meters unless noted).
type Vec3 struct {
	X, Y, Z float64
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Scale returns s*v.
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// Dot returns v · o.
func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

// Cross returns v × o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		X: v.Y*o.Z - v.Z*o.Y,
		Y: v.Z*o.X - v.X*o.Z,
		Z: v.X*o.Y - v.Y*o.X,
	}
}

// Norm returns |v|.
func (v Vec3) Norm() float64 { return math.Sqrt(v.Dot(v)) }

// Unit returns v/|v|, or the zero vector if |v| is zero.
func (v Vec3) Unit() Vec3 {
	n := v.Norm()
	if n == 0 {
		return Vec3{}
	}
	return v.Scale(1 / n)
}

// Array returns the components as a fixed array (JSON-friendly).
func (v Vec3) Array() [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

// Finite reports whether all components are finite.
func (v Vec3) Finite() bool { return Finite(v.X, v.Y, v.Z) }

// GeodeticToECEF converts geodetic coordinates (degrees, meters above the
// WGS-84 ellipsoid) to ECEF meters.
func GeodeticToECEF(latDeg, lonDeg, altM float64) Vec3 {
	lat := latDeg * deg2rad
	lon := lonDeg * deg2rad

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)

	// Radius of curvature in the prime vertical.
	N := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return Vec3{
		X: (N + altM) * cosLat * math.Cos(lon),
		Y: (N + altM) * cosLat * math.Sin(lon),
		Z: (N*(1-wgs84E2) + altM) * sinLat,
	}
}

// SurfaceNormal returns the unit vector from Earth's center through p on the
// mean sphere.
func SurfaceNormal(p LatLon) Vec3 {
	lat, lon := p.Radians()
	cosLat := math.Cos(lat)
	return Vec3{
		X: cosLat * math.Cos(lon),
		Y: cosLat * math.Sin(lon),
		Z: math.Sin(lat),
	}
}

// FromNormal converts a direction from Earth's center back to a point.
func FromNormal(n Vec3) LatLon {
	n = n.Unit()
	lat := math.Asin(Clamp(n.Z, -1, 1)) * rad2deg
	lon := math.Atan2(n.Y, n.X) * rad2deg
	return LatLon{Lat: lat, Lon: NormalizeLon(lon)}
}

// Basis is the local tangent frame at a surface point.
type Basis struct {
	Up    Vec3 // outward surface normal
	East  Vec3
	North Vec3

	// Degenerate is set when the Z axis was parallel to Up and the X axis
	// was used as the reference instead.
	Degenerate bool
}

// TangentBasis returns the east/north/up frame at p.
//
// East is z × up. At the poles that product vanishes; the X axis is then used
// as the reference axis, which yields a deterministic (if arbitrary) east.
func TangentBasis(p LatLon) Basis {
	up := SurfaceNormal(p)
	ref := Vec3{Z: 1}
	east := ref.Cross(up)
	degenerate := false
	if east.Norm() < degenerateTangent {
		ref = Vec3{X: 1}
		east = ref.Cross(up)
		degenerate = true
	}
	east = east.Unit()
	north := up.Cross(east).Unit()

	return Basis{Up: up, East: east, North: north, Degenerate: degenerate}
}

// Destination returns the point reached by travelling distKm from p along the
// great circle with the given bearing (degrees clockwise from north).
// Distances beyond half the circumference stop at the antipode.
func Destination(p LatLon, bearingDeg, distKm float64) LatLon {
	b := TangentBasis(p)
	delta := Clamp(distKm/EarthRadiusKm, 0, math.Pi)
	theta := bearingDeg * deg2rad

	dir := b.North.Scale(math.Cos(theta)).Add(b.East.Scale(math.Sin(theta)))
	n := b.Up.Scale(math.Cos(delta)).Add(dir.Scale(math.Sin(delta)))
	return FromNormal(n)
}
