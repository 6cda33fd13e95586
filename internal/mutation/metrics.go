package mutation

import "github.com/prometheus/client_golang/prometheus"

var (
	mutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modeldash",
			Subsystem: "mutation",
			Name:      "total",
			Help:      "Settled mutations by kind and result",
		},
		[]string{"kind", "result"},
	)

	mutationsInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "modeldash",
			Subsystem: "mutation",
			Name:      "inflight",
			Help:      "Mutations currently running against the backend",
		},
		[]string{"kind"},
	)

	mutationsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modeldash",
			Subsystem: "mutation",
			Name:      "rejected_total",
			Help:      "Mutations rejected before reaching the backend",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(mutationsTotal, mutationsInflight, mutationsRejected)
}
