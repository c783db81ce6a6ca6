// Package metrics declares the process-wide Prometheus collectors the
// scheduler reports through.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors bundles every metric WorkerLoop reports. A
// single instance is shared process-wide; Registry() returns it wired into
// a fresh prometheus.Registry for a host that wants to expose /metrics.
type Collectors struct {
	QueueDepth    *prometheus.GaugeVec
	BatchSize     prometheus.Histogram
	OpLatency     *prometheus.HistogramVec
	DagsCompleted *prometheus.CounterVec
	UnblocksTotal prometheus.Counter
}

// New constructs a fresh, unregistered set of collectors.
func New() *Collectors {
	return &Collectors{
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tensorsched",
			Name:      "queue_depth",
			Help:      "Number of DagRunInfo entries currently queued per device.",
		}, []string{"device"}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tensorsched",
			Name:      "batch_size",
			Help:      "Size of batches executed by RunBatched.",
			Buckets:   prometheus.LinearBuckets(1, 2, 8),
		}),
		OpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tensorsched",
			Name:      "op_latency_seconds",
			Help:      "Wall-clock time spent inside RunSingle/RunBatched.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"device"}),
		DagsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tensorsched",
			Name:      "dags_completed_total",
			Help:      "DAGs that reached a terminal state, by outcome.",
		}, []string{"outcome"}),
		UnblocksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tensorsched",
			Name:      "unblocks_total",
			Help:      "Client-unblock events delivered. Must equal dags_completed_total with non-detached clients.",
		}),
	}
}

// Registry returns a prometheus.Registry with every collector registered,
// suitable for serving from an HTTP handler.
func (c *Collectors) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c.QueueDepth, c.BatchSize, c.OpLatency, c.DagsCompleted, c.UnblocksTotal)
	return reg
}
