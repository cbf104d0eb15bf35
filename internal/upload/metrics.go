package upload

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "stockpile"

// Finalize outcomes recorded in the result label
const (
	resultSuccess      = "success"
	resultMissingChunk = "missing_chunk"
	resultBusy         = "busy"
	resultError        = "error"
)

// Metrics holds the upload collectors
type Metrics struct {
	SessionsStarted  prometheus.Counter
	ChunksReceived   prometheus.Counter
	ChunkBytes       prometheus.Counter
	Finalizations    *prometheus.CounterVec
	FinalizeDuration prometheus.Histogram
	SessionsExpired  prometheus.Counter
}

// NewMetrics registers the collectors with reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "upload",
			Name:      "sessions_started_total",
			Help:      "Upload sessions created by init.",
		}),
		ChunksReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "upload",
			Name:      "chunks_received_total",
			Help:      "Chunks stored, including overwrites.",
		}),
		ChunkBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "upload",
			Name:      "chunk_bytes_total",
			Help:      "Bytes of chunk content stored.",
		}),
		Finalizations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "upload",
			Name:      "finalize_total",
			Help:      "Finalize calls by result.",
		}, []string{"result"}),
		FinalizeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "upload",
			Name:      "finalize_duration_seconds",
			Help:      "Time spent assembling artifacts.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		SessionsExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "upload",
			Name:      "sessions_expired_total",
			Help:      "Sessions removed by the sweeper.",
		}),
	}
}
