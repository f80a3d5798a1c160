package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EndpointResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pal_endpoint_responses_total",
		Help: "The total number of endpoint responses served by pal serve",
	}, []string{"endpoint", "status_code"})

	// Dispatch metrics
	Runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pal_runs_total",
		Help: "Total number of Run calls by backend and outcome",
	}, []string{"backend", "result"})

	LaunchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pal_launch_failures_total",
		Help: "Total number of slots a backend failed to start",
	}, []string{"backend"})

	// Wait metrics
	WaitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pal_wait_duration_ms",
		Help:    "Duration of Wait calls in milliseconds",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 18), // 0.25ms to ~32s
	}, []string{"backend"})

	WaitPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pal_wait_polls_total",
		Help: "Total number of Status Register polls performed by Wait",
	}, []string{"backend"})

	SlotFaults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pal_slot_faults_total",
		Help: "Total number of slots observed in the error state by Wait",
	}, []string{"backend"})

	TeamsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pal_teams_open",
		Help: "Number of teams currently open",
	})

	// Bench metrics
	BenchRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pal_bench_run_duration_ms",
		Help:    "Duration of benchmarked Run calls in milliseconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 20),
	}, []string{"item"})
)
