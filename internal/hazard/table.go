package hazard

import (
	"fmt"
	"math"
)

// Validate reports whether every radius law is finite with a non-negative
// baseline and slope. A negative slope would let a larger energy produce a
// smaller radius.
func (t Table) Validate() error {
	laws := []struct {
		name string
		law  Affine
	}{
		{"blast", t.Blast},
		{"seismic", t.Seismic},
		{"tsunami", t.Tsunami},
	}
	for _, l := range laws {
		if !isFinite(l.law.Base) || !isFinite(l.law.Slope) {
			return fmt.Errorf("%s coefficients must be finite", l.name)
		}
		if l.law.Base < 0 {
			return fmt.Errorf("%s baseline %.3f is negative", l.name, l.law.Base)
		}
		if l.law.Slope < 0 {
			return fmt.Errorf("%s slope %.3f is negative", l.name, l.law.Slope)
		}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
