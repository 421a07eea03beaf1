package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors for the chaos engine. Registered once at startup via Register;
// components update them directly.
var (
	WindowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chaos_engine_windows_total",
			Help: "Chaos windows executed, labelled by outcome (ok, anomalous, failed).",
		},
		[]string{"outcome"},
	)

	ContainersKilledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chaos_engine_containers_killed_total",
			Help: "Containers stopped across all chaos windows.",
		},
	)

	StopAnomaliesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chaos_engine_stop_anomalies_total",
			Help: "Kill-set victims that failed to reach a terminal stopped state.",
		},
	)

	ProbeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chaos_engine_probe_requests_total",
			Help: "Endpoint probes issued, labelled by endpoint and outcome (ok, failed).",
		},
		[]string{"endpoint", "outcome"},
	)

	SimulationTrialsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chaos_engine_simulation_trials_total",
			Help: "Monte Carlo trials executed.",
		},
	)

	SimulationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chaos_engine_simulation_seconds",
			Help:    "Wall-clock duration of a full simulation pass.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)
)

// Register attaches every collector to the given registerer.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		WindowsTotal,
		ContainersKilledTotal,
		StopAnomaliesTotal,
		ProbeRequestsTotal,
		SimulationTrialsTotal,
		SimulationSeconds,
	)
}
