package scheduler

import "github.com/prometheus/client_golang/prometheus"

var (
	refreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modeldash",
			Subsystem: "refresh",
			Name:      "total",
			Help:      "Collection refreshes by result",
		},
		[]string{"collection", "result"},
	)

	refreshDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "modeldash",
			Subsystem: "refresh",
			Name:      "duration_seconds",
			Help:      "Duration of collection fetch and apply in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"collection"},
	)

	refreshCoalesced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modeldash",
			Subsystem: "refresh",
			Name:      "coalesced_total",
			Help:      "Refresh requests that joined a fetch already in flight",
		},
		[]string{"collection"},
	)

	deltaEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modeldash",
			Subsystem: "reconcile",
			Name:      "delta_events_total",
			Help:      "Applied delta events by kind",
		},
		[]string{"collection", "kind"},
	)
)

func init() {
	prometheus.MustRegister(refreshTotal, refreshDuration, refreshCoalesced, deltaEvents)
}
