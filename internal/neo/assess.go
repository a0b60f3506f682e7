package neo

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"github.com/star/impactgo/internal/hazard"
	"github.com/star/impactgo/internal/sim"
)

// Assessment is an object paired with the readouts it would produce if it
// struck at its close-approach speed.
type Assessment struct {
	Object   Object          `json:"object"`
	Readouts hazard.Readouts `json:"readouts"`
}

// Bundle converts o into a scenario bundle. The approach angle is left
// unchanged; the feed does not carry entry geometry.
func (o Object) Bundle() sim.Bundle {
	return sim.Bundle{
		Name:        o.Name,
		SizeM:       o.SizeM,
		SpeedKms:    o.SpeedKms,
		DensityKgm3: DefaultDensityKgm3,
	}
}

// Assess computes readouts for every object, ranked by energy (largest
// first, ties by id). Each object is evaluated in its own goroutine,
// bounded by a semaphore of the given size (default: NumCPU). Objects not
// reached before ctx is cancelled are omitted.
func Assess(ctx context.Context, objects []Object, table hazard.Table, workers int) []Assessment {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]*Assessment, len(objects))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, obj := range objects {
		wg.Add(1)
		go func(idx int, o Object) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			results[idx] = &Assessment{
				Object:   o,
				Readouts: table.Compute(o.SizeM, DefaultDensityKgm3, o.SpeedKms),
			}
		}(i, obj)
	}
	wg.Wait()

	out := make([]Assessment, 0, len(results))
	for _, a := range results {
		if a != nil {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Readouts.EnergyJoules != out[j].Readouts.EnergyJoules {
			return out[i].Readouts.EnergyJoules > out[j].Readouts.EnergyJoules
		}
		return out[i].Object.ID < out[j].Object.ID
	})
	return out
}
