package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/star/impactgo/internal/hazard"
	"github.com/star/impactgo/internal/neo"
	"github.com/star/impactgo/internal/sim"
	"github.com/star/impactgo/internal/zones"
)

func main() {
	var (
		preset   = flag.String("preset", "", "preset id (chelyabinsk, tunguska, apophis, bennu, chicxulub)")
		size     = flag.Float64("size", 0, "diameter in meters")
		speed    = flag.Float64("speed", 0, "entry speed in km/s")
		density  = flag.Float64("density", 0, "bulk density in kg/m^3")
		angle    = flag.Float64("angle", 0, "approach angle in degrees")
		kind     = flag.String("kind", "", "mitigation kind (kinetic, tractor, laser)")
		power    = flag.Float64("power", 0, "mitigation power in [0, 1]")
		lead     = flag.Float64("lead", 0, "mitigation lead time in seconds")
		lat      = flag.Float64("lat", math.NaN(), "locked target latitude")
		lon      = flag.Float64("lon", math.NaN(), "locked target longitude")
		duration = flag.Float64("duration", sim.DefaultDurationSeconds, "scenario length in seconds")
		step     = flag.Duration("step", time.Second, "simulated time per step")
		every    = flag.Int("every", 10, "print progress every N steps (0 disables)")
		asJSON   = flag.Bool("json", false, "print the final snapshot as JSON")
		neoDir   = flag.String("neo-cache", "", "rank objects from the newest NEO feed in this cache directory")
		neoTop   = flag.Int("neo-top", 10, "number of ranked NEOs to print")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if *neoDir != "" {
		if err := rankNEOs(*neoDir, *neoTop, logger); err != nil {
			fmt.Println("ERROR:", err)
			os.Exit(1)
		}
		return
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	state := sim.New(sim.Config{DurationSeconds: *duration, Epoch: time.Now().UTC()})
	if *preset != "" {
		if err := state.SelectPreset(*preset); err != nil {
			fmt.Println("ERROR:", err)
			os.Exit(1)
		}
	}

	params := []struct {
		flag, name string
		value      float64
	}{
		{"size", string(sim.ParamSize), *size},
		{"speed", string(sim.ParamSpeed), *speed},
		{"density", string(sim.ParamDensity), *density},
		{"angle", string(sim.ParamApproachAngle), *angle},
		{"power", string(sim.ParamMitigationPower), *power},
		{"lead", string(sim.ParamLeadTime), *lead},
	}
	for _, p := range params {
		if set[p.flag] {
			if err := state.SetParameter(p.name, p.value); err != nil {
				fmt.Println("ERROR:", err)
				os.Exit(1)
			}
		}
	}
	if *kind != "" {
		if err := state.SetMitigation(*kind); err != nil {
			fmt.Println("ERROR:", err)
			os.Exit(1)
		}
	}
	if set["lat"] || set["lon"] {
		if err := state.SetTarget(*lat, *lon); err != nil {
			fmt.Println("ERROR:", err)
			os.Exit(1)
		}
	}

	start := state.Snapshot()
	if !*asJSON {
		fmt.Printf("Scenario: size=%.1fm speed=%.2fkm/s density=%.0fkg/m^3 angle=%.1f° mitigation=%s power=%.2f\n",
			start.SizeM, start.SpeedKms, start.DensityKgm3, start.ApproachAngleDeg, start.MitigationKind, start.MitigationPower)
	}

	if *step <= 0 {
		fmt.Println("ERROR: step must be positive")
		os.Exit(1)
	}

	state.Start()
	for i := 1; state.Clock().ElapsedSeconds < state.Clock().DurationSeconds; i++ {
		state.AdvanceTime(step.Seconds())
		if !*asJSON && *every > 0 && i%*every == 0 {
			s := state.Snapshot()
			fmt.Printf("  t=%6.1fs eta=%6.1fs impact=(%.3f, %.3f)\n", s.ElapsedSeconds, s.EtaSeconds, s.ImpactLat, s.ImpactLon)
		}
	}

	final := state.Snapshot()
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(final)
		return
	}

	fmt.Printf("\nImpact at (%.4f, %.4f) after %.1fs\n", final.ImpactLat, final.ImpactLon, final.ElapsedSeconds)
	fmt.Printf("Energy:  %.4g Mt TNT\n", final.EnergyMtTNT)
	for _, r := range zones.Radii(final) {
		fmt.Printf("  %-8s %10.3f km\n", r.Kind, r.RadiusKm)
	}
	if n := state.TrajectoryFallbacks(); n > 0 {
		fmt.Printf("Trajectory fallbacks: %d\n", n)
	}
}

func rankNEOs(dir string, top int, logger *slog.Logger) error {
	data, ts, err := neo.NewCache(dir, 1).LoadLatest()
	if err != nil {
		return fmt.Errorf("reading NEO cache: %w", err)
	}
	objects, err := neo.Parse(bytes.NewReader(data), logger)
	if err != nil {
		return fmt.Errorf("parsing NEO feed: %w", err)
	}
	fmt.Printf("Loaded %d NEOs (cached %s)\n", len(objects), ts.UTC().Format(time.RFC3339))

	ranked := neo.Assess(context.Background(), objects, hazard.DefaultTable, 4)
	if top > 0 && len(ranked) > top {
		ranked = ranked[:top]
	}
	for i, a := range ranked {
		fmt.Printf("  %2d. %-24s size=%8.1fm speed=%6.2fkm/s energy=%10.4g Mt blast=%8.2fkm hazardous=%v\n",
			i+1, a.Object.Name, a.Object.SizeM, a.Object.SpeedKms,
			a.Readouts.EnergyMtTNT, a.Readouts.BlastKm, a.Object.Hazardous)
	}
	return nil
}
