package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchTotal counts remote requests by endpoint and outcome
	// (ok, transient, error).
	FetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kindred_fetch_total",
			Help: "Total number of requests sent to the remote graph service",
		},
		[]string{"endpoint", "outcome"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kindred_fetch_duration_seconds",
			Help:    "Duration of requests to the remote graph service",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint"},
	)

	// FetchRetries counts batch retries after a transient failure.
	FetchRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kindred_fetch_retries_total",
			Help: "Total number of batch fetch retries",
		},
		[]string{"mode"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kindred_runs_total",
			Help: "Total number of crawl runs by mode and final state",
		},
		[]string{"mode", "state"},
	)

	ActiveRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kindred_active_runs",
			Help: "Number of crawl runs currently in progress",
		},
	)

	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kindred_generations_total",
			Help: "Total number of generations expanded",
		},
		[]string{"mode"},
	)

	MatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kindred_matches_total",
			Help: "Total number of matches recorded by message",
		},
		[]string{"message"},
	)

	SessionsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kindred_sessions_evicted_total",
			Help: "Total number of idle sessions evicted from the store",
		},
	)
)
