package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	actionsEnqueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "driftq",
			Name:      "actions_enqueued_total",
			Help:      "Actions accepted into the durable store.",
		},
	)

	actionsDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "driftq",
			Name:      "actions_delivered_total",
			Help:      "Actions confirmed delivered and removed from the store.",
		},
	)

	syncCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "driftq",
			Name:      "sync_cycles_total",
			Help:      "Completed sync cycles by result.",
		},
		[]string{"result"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "driftq",
			Name:      "queue_depth",
			Help:      "Pending actions currently in the durable store.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(actionsEnqueued, actionsDelivered, syncCycles, queueDepth)
	})
}

// IncEnqueued counts one accepted action.
func IncEnqueued() {
	actionsEnqueued.Inc()
}

// AddDelivered counts actions confirmed by the remote side.
func AddDelivered(n int) {
	actionsDelivered.Add(float64(n))
}

// IncSyncCycle counts a completed cycle with a result label
// ("delivered", "failed", "partial", "empty").
func IncSyncCycle(result string) {
	syncCycles.WithLabelValues(result).Inc()
}

// SetQueueDepth records the current store depth.
func SetQueueDepth(n int64) {
	queueDepth.Set(float64(n))
}
