package trajectory

import (
	"math"
	"math/rand"
	"testing"

	"github.com/star/impactgo/internal/geo"
)

func baseInput() Input {
	return Input{
		ElapsedSeconds:   0,
		DurationSeconds:  120,
		ApproachAngleDeg: 45,
		LeadTimeSeconds:  30,
		Kind:             Kinetic,
		Power:            0.5,
	}
}

func TestReferenceAtStart(t *testing.T) {
	m := NewModel()
	p := m.ImpactPoint(baseInput())
	if p.Lat != Reference.Lat || p.Lon != Reference.Lon {
		t.Errorf("impact at t=0 = (%v, %v), want reference (%v, %v)", p.Lat, p.Lon, Reference.Lat, Reference.Lon)
	}
	if p.EtaSeconds != 120 {
		t.Errorf("eta = %v, want 120", p.EtaSeconds)
	}
}

func TestDriftActivation(t *testing.T) {
	tests := []struct {
		name     string
		elapsed  float64
		lead     float64
		power    float64
		expected float64
	}{
		{"before window", 80, 30, 1, 0},
		{"at window start", 90, 30, 1, 0},
		{"half window", 105, 30, 1, 0.5},
		{"end of window", 120, 30, 1, 1},
		{"half power", 120, 30, 0.5, 0.5},
		{"lead below one", 119.5, 0.1, 1, 0.5},
		{"lead longer than duration", 0.000001, 500, 1, (0.000001 + 380) / 500},
		{"power clamped", 120, 30, 3, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Drift(tt.elapsed, 120, tt.lead, tt.power)
			if math.Abs(got-tt.expected) > 1e-12 {
				t.Errorf("Drift(%v, 120, %v, %v) = %v, want %v", tt.elapsed, tt.lead, tt.power, got, tt.expected)
			}
		})
	}
}

// TestDriftOrdering verifies kinetic moves the point furthest and tractor
// the least, at identical power and progress.
func TestDriftOrdering(t *testing.T) {
	displacement := func(k Kind) float64 {
		in := baseInput()
		in.ElapsedSeconds = 120
		in.Power = 1
		in.Kind = k
		p := NewModel().ImpactPoint(in)
		return geo.DistanceKm(Reference, p.LatLon())
	}

	kinetic := displacement(Kinetic)
	laser := displacement(Laser)
	tractor := displacement(Tractor)
	if !(kinetic > laser && laser > tractor && tractor > 0) {
		t.Errorf("displacement ordering: kinetic=%.1f laser=%.1f tractor=%.1f km", kinetic, laser, tractor)
	}

	if !(DriftRates[Kinetic].Magnitude() > DriftRates[Laser].Magnitude() &&
		DriftRates[Laser].Magnitude() > DriftRates[Tractor].Magnitude()) {
		t.Errorf("rate magnitudes out of order: %+v", DriftRates)
	}
}

func TestDriftIsDeterministicInTime(t *testing.T) {
	in := baseInput()
	in.ElapsedSeconds = 110
	a := NewModel().ImpactPoint(in)

	m := NewModel()
	for _, e := range []float64{0, 50, 100, 119, 5} {
		x := in
		x.ElapsedSeconds = e
		m.ImpactPoint(x)
	}
	b := m.ImpactPoint(in)
	if a != b {
		t.Errorf("same input produced %+v and %+v", a, b)
	}
}

func TestAngleBias(t *testing.T) {
	in := baseInput()
	in.Power = 0
	in.ElapsedSeconds = 120

	in.ApproachAngleDeg = 90
	steep := NewModel().ImpactPoint(in)
	if want := Reference.Lat + AngleBiasDeg*0.5; math.Abs(steep.Lat-want) > 1e-12 {
		t.Errorf("90° lat = %v, want %v", steep.Lat, want)
	}

	in.ApproachAngleDeg = 0
	shallow := NewModel().ImpactPoint(in)
	if want := Reference.Lat - AngleBiasDeg*0.5; math.Abs(shallow.Lat-want) > 1e-12 {
		t.Errorf("0° lat = %v, want %v", shallow.Lat, want)
	}

	in.ApproachAngleDeg = 45
	neutral := NewModel().ImpactPoint(in)
	if neutral.Lat != Reference.Lat {
		t.Errorf("45° lat = %v, want %v", neutral.Lat, Reference.Lat)
	}
}

// TestTargetLockIsAbsolute verifies a locked target suppresses drift and
// bias entirely.
func TestTargetLockIsAbsolute(t *testing.T) {
	m := NewModel()
	for _, elapsed := range []float64{0, 60, 95, 110, 120} {
		in := baseInput()
		in.ElapsedSeconds = elapsed
		in.Power = 1
		in.ApproachAngleDeg = 80
		in.Target = &Target{Lat: 51.5, Lon: -0.1, Locked: true}

		p := m.ImpactPoint(in)
		if p.Lat != 51.5 || p.Lon != -0.1 {
			t.Errorf("elapsed %v: impact = (%v, %v), want (51.5, -0.1)", elapsed, p.Lat, p.Lon)
		}
		if p.EtaSeconds != 120-elapsed {
			t.Errorf("elapsed %v: eta = %v, want %v", elapsed, p.EtaSeconds, 120-elapsed)
		}
	}
}

func TestUnlockedTargetIgnored(t *testing.T) {
	in := baseInput()
	in.Target = &Target{Lat: 51.5, Lon: -0.1, Locked: false}
	p := NewModel().ImpactPoint(in)
	if p.Lat != Reference.Lat || p.Lon != Reference.Lon {
		t.Errorf("unlocked target changed impact: %+v", p)
	}
}

func TestLockedTargetClamped(t *testing.T) {
	in := baseInput()
	in.Target = &Target{Lat: 90, Lon: 200, Locked: true}
	p := NewModel().ImpactPoint(in)
	if p.Lat != geo.MaxLat {
		t.Errorf("lat = %v, want %v", p.Lat, geo.MaxLat)
	}
	if math.Abs(p.Lon-(-160)) > 1e-9 {
		t.Errorf("lon = %v, want -160", p.Lon)
	}
}

func TestNonFiniteFallsBackToLastValid(t *testing.T) {
	m := NewModel()
	in := baseInput()
	in.ElapsedSeconds = 115
	good := m.ImpactPoint(in)

	bad := []Input{
		func() Input { x := in; x.ElapsedSeconds = math.NaN(); return x }(),
		func() Input { x := in; x.DurationSeconds = math.Inf(1); return x }(),
		func() Input { x := in; x.LeadTimeSeconds = math.Inf(-1); return x }(),
		func() Input { x := in; x.Power = math.NaN(); return x }(),
		func() Input { x := in; x.ApproachAngleDeg = math.NaN(); return x }(),
		func() Input { x := in; x.Target = &Target{Lat: math.NaN(), Lon: 0, Locked: true}; return x }(),
	}
	for i, b := range bad {
		if got := m.ImpactPoint(b); got != good {
			t.Errorf("case %d: got %+v, want last valid %+v", i, got, good)
		}
	}
	if m.Fallbacks() != int64(len(bad)) {
		t.Errorf("Fallbacks() = %d, want %d", m.Fallbacks(), len(bad))
	}
	if m.Last() != good {
		t.Errorf("Last() = %+v, want %+v", m.Last(), good)
	}
}

func TestFirstCallFallbackIsReference(t *testing.T) {
	m := NewModel()
	in := baseInput()
	in.ElapsedSeconds = math.NaN()
	p := m.ImpactPoint(in)
	if p.Lat != Reference.Lat || p.Lon != Reference.Lon {
		t.Errorf("initial fallback = %+v, want reference", p)
	}
}

// TestCoordinateDomainFuzz feeds 10,000 randomized inputs, including extreme
// and boundary values, and checks every output stays finite and in domain.
func TestCoordinateDomainFuzz(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	specials := []float64{
		0, -0.0, 1, -1, 1e-300, -1e-300, 1e308, -1e308, math.MaxFloat64, -math.MaxFloat64,
		math.NaN(), math.Inf(1), math.Inf(-1), math.SmallestNonzeroFloat64,
	}
	pick := func(scale float64) float64 {
		if rng.Intn(4) == 0 {
			return specials[rng.Intn(len(specials))]
		}
		return (rng.Float64()*2 - 0.5) * scale
	}

	m := NewModel()
	for i := 0; i < 10000; i++ {
		in := Input{
			ElapsedSeconds:   pick(200),
			DurationSeconds:  pick(200),
			ApproachAngleDeg: pick(180),
			LeadTimeSeconds:  pick(300),
			Kind:             Kinds[rng.Intn(len(Kinds))],
			Power:            pick(2),
		}
		if i%7 == 0 {
			in.DurationSeconds = 0
		}
		if rng.Intn(5) == 0 {
			in.Target = &Target{Lat: pick(400), Lon: pick(1000), Locked: rng.Intn(2) == 0}
		}

		p := m.ImpactPoint(in)
		if !geo.Finite(p.Lat, p.Lon, p.EtaSeconds) {
			t.Fatalf("input %+v: non-finite output %+v", in, p)
		}
		if p.Lat < -90 || p.Lat > 90 {
			t.Fatalf("input %+v: lat %v out of domain", in, p.Lat)
		}
		if p.Lon < -180 || p.Lon >= 180 {
			t.Fatalf("input %+v: lon %v out of domain", in, p.Lon)
		}
		if p.EtaSeconds < 0 {
			t.Fatalf("input %+v: negative eta %v", in, p.EtaSeconds)
		}
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
		ok   bool
	}{
		{"kinetic", Kinetic, true},
		{"Gravity_Tractor", Tractor, true},
		{" laser-ablation ", Laser, true},
		{"nuke", "", false},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ParseKind(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestApproachPosition(t *testing.T) {
	p := Point{Lat: 0, Lon: 0, EtaSeconds: 10}
	site := geo.GeodeticToECEF(0, 0, 0)

	// Vertical approach: straight above the site, speed*eta km away.
	v := ApproachPosition(p, 90, 20, 10)
	if d := v.Add(site.Scale(-1)).Norm(); math.Abs(d-200000) > 1e-6 {
		t.Errorf("vertical approach distance = %v m, want 200000", d)
	}
	if v.X <= site.X {
		t.Errorf("vertical approach should be above the site: %+v", v)
	}

	// At impact the asteroid sits on the site.
	if got := ApproachPosition(p, 30, 20, 0); got != site {
		t.Errorf("eta 0 position = %+v, want site %+v", got, site)
	}

	// Non-finite inputs never leak NaN.
	if got := ApproachPosition(p, math.NaN(), 20, 10); !got.Finite() {
		t.Errorf("NaN angle gave %+v", got)
	}

	// Shallow approach comes in from the west, so the asteroid is at negative Y.
	shallow := ApproachPosition(p, 10, 20, 10)
	if shallow.Y >= 0 {
		t.Errorf("shallow approach Y = %v, want < 0 (west of site)", shallow.Y)
	}
}
