package trajectory

import (
	"math"

	"github.com/star/impactgo/internal/geo"
)

// maxApproachKm keeps the rendered asteroid within a sane scene distance.
const maxApproachKm = 1.5e6

// ApproachPosition places the asteroid on a straight-line approach path that
// ends at the impact point. The path heads due east at the impact site and
// descends at approachAngleDeg below the local horizon; the asteroid sits
// speedKms*etaSeconds back along it. The result is in ECEF meters.
//
// Non-finite arguments collapse the distance to zero (the asteroid is drawn
// at the impact point) rather than producing NaN coordinates.
func ApproachPosition(p Point, approachAngleDeg, speedKms, etaSeconds float64) geo.Vec3 {
	site := geo.GeodeticToECEF(p.Lat, p.Lon, 0)

	if !geo.Finite(approachAngleDeg, speedKms, etaSeconds) {
		return site
	}

	distKm := geo.Clamp(math.Max(0, speedKms)*math.Max(0, etaSeconds), 0, maxApproachKm)
	angle := geo.Clamp(approachAngleDeg, 0, 90) * math.Pi / 180

	b := geo.TangentBasis(p.LatLon())
	// Travel direction: eastward horizontal component, downward vertical one.
	travel := b.East.Scale(math.Cos(angle)).Add(b.Up.Scale(-math.Sin(angle)))

	return site.Add(travel.Scale(-distKm * 1000))
}
