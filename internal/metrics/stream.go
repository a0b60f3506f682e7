package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	streamConnectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "impactgo_stream_connections_total",
		Help: "Stream connection events by transport and event.",
	}, []string{"transport", "event"})

	streamsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "impactgo_streams_active",
		Help: "Currently open snapshot streams.",
	}, []string{"transport"})

	streamMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "impactgo_stream_messages_total",
		Help: "Messages sent on snapshot streams.",
	})

	streamBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "impactgo_stream_bytes_total",
		Help: "Bytes sent on snapshot streams.",
	})

	streamErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "impactgo_stream_errors_total",
		Help: "Stream errors by reason.",
	}, []string{"reason"})

	neoFetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "impactgo_neo_fetch_total",
		Help: "NEO feed fetch attempts by result.",
	}, []string{"result"})

	neoDatasetCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "impactgo_neo_dataset_objects",
		Help: "Near-earth objects in the loaded dataset.",
	})

	neoDatasetAge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "impactgo_neo_dataset_age_seconds",
		Help: "Age of the loaded NEO dataset.",
	})
)

func init() {
	prometheus.MustRegister(
		streamConnectionsTotal,
		streamsActive,
		streamMessagesTotal,
		streamBytesTotal,
		streamErrorsTotal,
		neoFetchTotal,
		neoDatasetCount,
		neoDatasetAge,
	)
}

// IncStreamConnections counts a connect/disconnect event.
func IncStreamConnections(transport, event string) {
	streamConnectionsTotal.WithLabelValues(transport, event).Inc()
}

// IncStreamsActive marks a stream as open.
func IncStreamsActive(transport string) {
	streamsActive.WithLabelValues(transport).Inc()
}

// DecStreamsActive marks a stream as closed.
func DecStreamsActive(transport string) {
	streamsActive.WithLabelValues(transport).Dec()
}

// IncStreamMessages counts one sent message.
func IncStreamMessages() {
	streamMessagesTotal.Inc()
}

// AddStreamBytes counts sent bytes.
func AddStreamBytes(n int64) {
	streamBytesTotal.Add(float64(n))
}

// IncStreamErrors counts a stream error.
func IncStreamErrors(reason string) {
	streamErrorsTotal.WithLabelValues(reason).Inc()
}

// IncNEOFetch counts a NEO fetch attempt.
func IncNEOFetch(result string) {
	neoFetchTotal.WithLabelValues(result).Inc()
}

// SetNEODatasetCount publishes the number of loaded objects.
func SetNEODatasetCount(n int) {
	neoDatasetCount.Set(float64(n))
}

// SetNEODatasetAge publishes the dataset age.
func SetNEODatasetAge(seconds float64) {
	neoDatasetAge.Set(seconds)
}
