package workflow

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the set of Prometheus collectors the scheduler updates across
// a run, grounded on the teacher's metrics.go PrometheusMetrics: gauges
// for in-flight work, histograms for latency, counters for retries and
// backpressure events.
type Metrics struct {
	InflightExecutors   prometheus.Gauge
	QueueDepth          prometheus.Gauge
	SuperstepLatencyMS  prometheus.Histogram
	RetriesTotal        prometheus.Counter
	BackpressureTotal   prometheus.Counter
	RequestsPendingGauge prometheus.Gauge
}

// NewMetrics registers and returns a Metrics set under registry, namespaced
// "workflow_" in line with the teacher's "langgraph_" convention for the
// same concern.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		InflightExecutors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "workflow", Name: "inflight_executors", Help: "Number of executor invocations currently in flight.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "workflow", Name: "queue_depth", Help: "Number of distinct target executors dispatched in the most recent superstep.",
		}),
		SuperstepLatencyMS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "workflow", Name: "superstep_latency_ms", Help: "Wall-clock duration of a single superstep, in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
		RetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "workflow", Name: "retries_total", Help: "Total executor invocation retries.",
		}),
		BackpressureTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "workflow", Name: "backpressure_events_total", Help: "Total live events not delivered to the stream before the backpressure timeout or context end.",
		}),
		RequestsPendingGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "workflow", Name: "requests_pending", Help: "Number of currently outstanding request-info requests.",
		}),
	}
	registry.MustRegister(
		m.InflightExecutors, m.QueueDepth, m.SuperstepLatencyMS,
		m.RetriesTotal, m.BackpressureTotal, m.RequestsPendingGauge,
	)
	return m
}
