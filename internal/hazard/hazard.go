// Package hazard maps an asteroid's size, density and speed to its energy
// release and the derived hazard readouts (crater, blast, seismic, tsunami).
//
// The formulas are deliberately simplified. Kinetic energy treats the body as
// a uniform sphere; the radii are affine in the energy (megatons TNT) with a
// nonzero baseline representing a minimum disturbance radius. The coefficients
// are tuning constants, not derived physics, and live in a Table so they can
// be swapped as a unit.
package hazard

import "math"

const (
	// JoulesPerMegaton is the TNT equivalence used for the energy readout.
	JoulesPerMegaton = 4.184e15

	// CraterCoefficient scales cbrt(Mt) to a crater diameter in km.
	CraterCoefficient = 1.2

	// Epsilon replaces non-finite or non-positive inputs.
	Epsilon = 1e-9
)

// Affine is a radius law r(Mt) = Base + Slope*Mt, in km.
type Affine struct {
	Base  float64
	Slope float64
}

// At evaluates the law at the given energy.
func (a Affine) At(mt float64) float64 {
	return a.Base + a.Slope*mt
}

// Table holds the hazard-radius coefficients.
type Table struct {
	Blast   Affine
	Seismic Affine
	Tsunami Affine
}

// DefaultTable is the coefficient table used by Compute.
//
//	blast   =  2.0 + 0.40 * Mt
//	seismic = 10.0 + 1.20 * Mt
//	tsunami =  5.0 + 0.90 * Mt
var DefaultTable = Table{
	Blast:   Affine{Base: 2.0, Slope: 0.40},
	Seismic: Affine{Base: 10.0, Slope: 1.20},
	Tsunami: Affine{Base: 5.0, Slope: 0.90},
}

// Readouts are the energy-derived quantities for one set of inputs.
type Readouts struct {
	EnergyJoules float64 `json:"energy_joules"`
	EnergyMtTNT  float64 `json:"energy_mt"`
	CraterKm     float64 `json:"crater_km"`
	BlastKm      float64 `json:"blast_km"`
	SeismicKm    float64 `json:"seismic_km"`
	TsunamiKm    float64 `json:"tsunami_km"`
}

// Compute evaluates DefaultTable. It is total: any input produces finite,
// non-negative readouts.
func Compute(sizeM, densityKgm3, speedKms float64) Readouts {
	return DefaultTable.Compute(sizeM, densityKgm3, speedKms)
}

// Compute evaluates the table for a sphere of diameter sizeM (metres), bulk
// density densityKgm3 and impact velocity speedKms.
func (t Table) Compute(sizeM, densityKgm3, speedKms float64) Readouts {
	sizeM = positive(sizeM)
	densityKgm3 = positive(densityKgm3)
	speedKms = positive(speedKms)

	joules := finite(KineticEnergy(sizeM, densityKgm3, speedKms))
	mt := finite(joules / JoulesPerMegaton)

	return Readouts{
		EnergyJoules: joules,
		EnergyMtTNT:  mt,
		CraterKm:     finite(math.Cbrt(mt) * CraterCoefficient),
		BlastKm:      finite(t.Blast.At(mt)),
		SeismicKm:    finite(t.Seismic.At(mt)),
		TsunamiKm:    finite(t.Tsunami.At(mt)),
	}
}

// Mass returns the mass in kg of a sphere of the given diameter and density.
func Mass(sizeM, densityKgm3 float64) float64 {
	r := sizeM / 2
	return densityKgm3 * (4.0 / 3.0) * math.Pi * r * r * r
}

// KineticEnergy returns ½mv² in joules, with v given in km/s.
func KineticEnergy(sizeM, densityKgm3, speedKms float64) float64 {
	v := speedKms * 1000
	return 0.5 * Mass(sizeM, densityKgm3) * v * v
}

func positive(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < Epsilon {
		return Epsilon
	}
	return v
}

// finite caps overflow and floors negative results from a malformed table.
func finite(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case v < 0:
		return 0
	}
	return v
}
