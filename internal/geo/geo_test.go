package geo

import (
	"math"
	"math/rand"
	"testing"
)

func TestNormalizeLon(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{179.5, 179.5},
		{180, -180},
		{-180, -180},
		{190, -170},
		{-190, 170},
		{540, -180},
		{-720.25, -0.25},
		{359.999, -0.001},
	}

	for _, tt := range tests {
		got := NormalizeLon(tt.in)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("NormalizeLon(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeLonDomain(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10000; i++ {
		in := (rng.Float64() - 0.5) * math.Pow(10, float64(rng.Intn(12)))
		got := NormalizeLon(in)
		if got < -180 || got >= 180 || math.IsNaN(got) {
			t.Fatalf("NormalizeLon(%v) = %v, out of [-180, 180)", in, got)
		}
	}
	// Tiny negative offsets must not round up onto +180.
	if got := NormalizeLon(-180 - 1e-15); got >= 180 {
		t.Errorf("NormalizeLon(-180-1e-15) = %v, want < 180", got)
	}
}

func TestClampLat(t *testing.T) {
	if got := ClampLat(90); got != MaxLat {
		t.Errorf("ClampLat(90) = %v, want %v", got, MaxLat)
	}
	if got := ClampLat(-1000); got != -MaxLat {
		t.Errorf("ClampLat(-1000) = %v, want %v", got, -MaxLat)
	}
	if got := ClampLat(51.5); got != 51.5 {
		t.Errorf("ClampLat(51.5) = %v, want 51.5", got)
	}
}

func TestTangentBasisOrthonormal(t *testing.T) {
	points := []LatLon{
		{0, 0}, {51.5, -0.1}, {-33.9, 151.2}, {89.999, 10}, {-89.999, -170},
	}
	for _, p := range points {
		b := TangentBasis(p)
		if b.Degenerate {
			t.Errorf("%v: unexpected degenerate basis", p)
		}
		for name, v := range map[string]Vec3{"up": b.Up, "east": b.East, "north": b.North} {
			if math.Abs(v.Norm()-1) > 1e-9 {
				t.Errorf("%v: |%s| = %v, want 1", p, name, v.Norm())
			}
		}
		if math.Abs(b.Up.Dot(b.East)) > 1e-9 || math.Abs(b.Up.Dot(b.North)) > 1e-9 || math.Abs(b.East.Dot(b.North)) > 1e-9 {
			t.Errorf("%v: basis not orthogonal: %+v", p, b)
		}
		// North should point towards +Z away from the poles.
		if p.Lat < 89 && b.North.Z <= 0 {
			t.Errorf("%v: north.Z = %v, want > 0", p, b.North.Z)
		}
	}
}

// TestTangentBasisPoleFallback verifies that an exact pole switches to the
// alternate reference axis instead of producing a zero east vector.
func TestTangentBasisPoleFallback(t *testing.T) {
	for _, lat := range []float64{90, -90} {
		b := TangentBasis(LatLon{Lat: lat, Lon: 0})
		if !b.Degenerate {
			t.Errorf("lat %v: expected degenerate fallback", lat)
		}
		if math.Abs(b.East.Norm()-1) > 1e-9 || math.Abs(b.North.Norm()-1) > 1e-9 {
			t.Errorf("lat %v: fallback basis not unit length: %+v", lat, b)
		}
		if !b.East.Finite() || !b.North.Finite() {
			t.Errorf("lat %v: fallback basis not finite: %+v", lat, b)
		}
	}
}

func TestDestination(t *testing.T) {
	start := LatLon{Lat: 0, Lon: 0}

	// One degree of arc due north.
	oneDeg := EarthRadiusKm * math.Pi / 180
	got := Destination(start, 0, oneDeg)
	if math.Abs(got.Lat-1) > 1e-6 || math.Abs(got.Lon) > 1e-6 {
		t.Errorf("north 1°: got %+v, want {1 0}", got)
	}

	// One degree due east along the equator.
	got = Destination(start, 90, oneDeg)
	if math.Abs(got.Lat) > 1e-6 || math.Abs(got.Lon-1) > 1e-6 {
		t.Errorf("east 1°: got %+v, want {0 1}", got)
	}

	// Round trip distance.
	london := LatLon{Lat: 51.5, Lon: -0.1}
	dest := Destination(london, 37, 850)
	if d := DistanceKm(london, dest); math.Abs(d-850) > 1e-6 {
		t.Errorf("DistanceKm after Destination = %v, want 850", d)
	}

	// Distances beyond the antipode stop there.
	far := Destination(start, 45, 1e9)
	if !far.Valid() {
		t.Errorf("far destination invalid: %+v", far)
	}
	if d := DistanceKm(start, far); math.Abs(d-math.Pi*EarthRadiusKm) > 1e-3 {
		t.Errorf("antipode distance = %v, want %v", d, math.Pi*EarthRadiusKm)
	}
}

func TestGeodeticToECEFMagnitude(t *testing.T) {
	eq := GeodeticToECEF(0, 0, 0)
	if math.Abs(eq.Norm()-6378137.0) > 1.0 {
		t.Errorf("equatorial magnitude = %.1f m, want ~6378137 m", eq.Norm())
	}
	pole := GeodeticToECEF(90, 0, 0)
	if math.Abs(pole.Norm()-6356752.3) > 1.0 {
		t.Errorf("polar magnitude = %.1f m, want ~6356752 m", pole.Norm())
	}
}

func TestFromNormal(t *testing.T) {
	p := LatLon{Lat: -12.5, Lon: 123.25}
	got := FromNormal(SurfaceNormal(p))
	if math.Abs(got.Lat-p.Lat) > 1e-9 || math.Abs(got.Lon-p.Lon) > 1e-9 {
		t.Errorf("FromNormal(SurfaceNormal(%+v)) = %+v", p, got)
	}
}
