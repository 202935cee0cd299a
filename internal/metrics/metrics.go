package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SeriesFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cyclewatch_series_fetch_total",
			Help: "Total series provider fetches",
		},
		[]string{"source", "status"},
	)

	SeriesFetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cyclewatch_series_fetch_latency_seconds",
			Help:    "Series provider fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	ObservationsFetched = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cyclewatch_observations_fetched",
			Help: "Rows returned by the most recent fetch",
		},
		[]string{"series"},
	)

	ParseErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cyclewatch_parse_errors_total",
			Help: "Raw values that could not be parsed and were treated as missing",
		},
		[]string{"series"},
	)

	ClassificationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cyclewatch_classification_runs_total",
			Help: "Total classification runs by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	CurrentPhase = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cyclewatch_current_phase",
			Help: "1 for the phase reported by the latest successful run, 0 otherwise",
		},
		[]string{"phase"},
	)
)

// SetPhase marks phase as the current one and clears the others.
func SetPhase(phase string, all []string) {
	for _, p := range all {
		v := 0.0
		if p == phase {
			v = 1
		}
		CurrentPhase.WithLabelValues(p).Set(v)
	}
}
