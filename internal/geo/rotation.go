package geo

import (
	"math"
	"time"
)

// j2000 is the Julian Date of the J2000.0 epoch (January 1, 2000, 12:00:00 TT).
const j2000 = 2451545.0

// maxOffset keeps the epoch offset inside time.Duration's range (~100 years).
const maxOffset = 100 * 365.25 * 86400.0

// JulianDate converts a time.Time (UTC) to Julian Date.
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())
	h := float64(t.Hour())
	min := float64(t.Minute())
	s := float64(t.Second()) + float64(t.Nanosecond())/1e9

	// Jan/Feb count as months 13/14 of the previous year.
	if m <= 2 {
		y -= 1
		m += 12
	}

	A := math.Floor(y / 100)
	B := 2 - A + math.Floor(A/4)

	jd := math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + B - 1524.5
	jd += (h + min/60.0 + s/3600.0) / 24.0

	return jd
}

// GMST returns Greenwich Mean Sidereal Time in radians, [0, 2π), using the
// IAU-82 model.
func GMST(t time.Time) float64 {
	tUT1 := (JulianDate(t) - j2000) / 36525.0

	gmstSec := 67310.54841 +
		(3155760000.0+8640184.812866)*tUT1 +
		0.093104*tUT1*tUT1 -
		6.2e-6*tUT1*tUT1*tUT1

	gmstSec = math.Mod(gmstSec, 86400.0)
	if gmstSec < 0 {
		gmstSec += 86400.0
	}
	return gmstSec / 86400.0 * 2.0 * math.Pi
}

// EarthRotation returns the globe's rotation angle for a scenario that
// started at epoch and has run elapsedSeconds of simulated time. Non-finite
// elapsed values are treated as zero; the offset is capped at ±maxOffset.
func EarthRotation(epoch time.Time, elapsedSeconds float64) float64 {
	if !Finite(elapsedSeconds) {
		elapsedSeconds = 0
	}
	elapsedSeconds = Clamp(elapsedSeconds, -maxOffset, maxOffset)
	return GMST(epoch.Add(time.Duration(elapsedSeconds * float64(time.Second))))
}
