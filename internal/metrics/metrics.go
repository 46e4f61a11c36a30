// Package metrics exposes Prometheus collectors for the discovery job.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Discovery struct {
	Runs          *prometheus.CounterVec
	Matches       prometheus.Gauge
	AvgScore      prometheus.Gauge
	Deleted       prometheus.Gauge
	Candidates    prometheus.Gauge
	WriteFailures prometheus.Counter
	Duration      prometheus.Histogram
	LastSuccess   prometheus.Gauge
}

// NewDiscovery creates the collectors and registers them with reg.
func NewDiscovery(reg prometheus.Registerer) *Discovery {
	m := &Discovery{
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "symbiosis_discovery_runs_total",
				Help: "Partnership discovery runs by outcome",
			},
			[]string{"result"},
		),
		Matches: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "symbiosis_discovery_matches",
			Help: "POTENTIAL_MATCH edges present after the last run",
		}),
		AvgScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "symbiosis_discovery_avg_score",
			Help: "Average Jaccard score of persisted matches after the last run",
		}),
		Deleted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "symbiosis_discovery_deleted_edges",
			Help: "Stale POTENTIAL_MATCH edges removed by the last run",
		}),
		Candidates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "symbiosis_discovery_candidate_pairs",
			Help: "Cross-industry pairs sharing at least one material in the last run",
		}),
		WriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "symbiosis_discovery_write_failures_total",
			Help: "Match edges that could not be written",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "symbiosis_discovery_duration_seconds",
			Help:    "Wall time of a discovery run",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "symbiosis_discovery_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run",
		}),
	}
	reg.MustRegister(m.Runs, m.Matches, m.AvgScore, m.Deleted, m.Candidates, m.WriteFailures, m.Duration, m.LastSuccess)
	return m
}
