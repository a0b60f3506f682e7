package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	framesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "impactgo_sim_frames_total",
		Help: "Frame ticks applied to the simulation clock.",
	})

	frameDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "impactgo_sim_frame_duration_seconds",
		Help:    "Time spent advancing and publishing one frame.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
	})

	intentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "impactgo_intents_total",
		Help: "Intents applied to the simulation, by operation and result.",
	}, []string{"op", "result"})

	simElapsedSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "impactgo_sim_elapsed_seconds",
		Help: "Simulated seconds elapsed in the current scenario.",
	})

	simRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "impactgo_sim_running",
		Help: "1 while the simulation clock is running.",
	})

	simEnergyMt = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "impactgo_sim_energy_megatons",
		Help: "Impact energy of the current scenario in megatons TNT.",
	})

	trajectoryFallbacks = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "impactgo_trajectory_fallbacks",
		Help: "Impact point evaluations that fell back to the last valid value.",
	})

	keyframeEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "impactgo_keyframe_entries",
		Help: "Snapshots held in the keyframe history.",
	})

	keyframeEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "impactgo_keyframe_evictions_total",
		Help: "Snapshots evicted from the keyframe history.",
	})
)

func init() {
	prometheus.MustRegister(
		framesTotal,
		frameDurationSeconds,
		intentsTotal,
		simElapsedSeconds,
		simRunning,
		simEnergyMt,
		trajectoryFallbacks,
		keyframeEntries,
		keyframeEvictions,
	)
}

// RecordFrame counts one frame tick and its processing time.
func RecordFrame(d time.Duration) {
	framesTotal.Inc()
	frameDurationSeconds.Observe(d.Seconds())
}

// IncIntent counts an applied intent; result is "ok" or a short error class.
func IncIntent(op, result string) {
	intentsTotal.WithLabelValues(op, result).Inc()
}

// SetSimState publishes the headline scenario gauges.
func SetSimState(elapsed float64, running bool, energyMt float64) {
	simElapsedSeconds.Set(elapsed)
	if running {
		simRunning.Set(1)
	} else {
		simRunning.Set(0)
	}
	simEnergyMt.Set(energyMt)
}

// SetTrajectoryFallbacks publishes the fallback count.
func SetTrajectoryFallbacks(n int64) {
	trajectoryFallbacks.Set(float64(n))
}

// SetKeyframeEntries publishes the keyframe history size.
func SetKeyframeEntries(n int) {
	keyframeEntries.Set(float64(n))
}

// AddKeyframeEvictions counts evicted keyframes.
func AddKeyframeEvictions(n int) {
	keyframeEvictions.Add(float64(n))
}
