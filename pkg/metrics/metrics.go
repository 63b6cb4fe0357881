package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ergodist_build_info",
			Help: "Build information of the distribution service",
		},
		[]string{"version", "commit", "date"},
	)

	DistributionRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ergodist_distribution_runs_total",
			Help: "Total number of distribution runs",
		},
		[]string{"service", "status"},
	)

	DistributionRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ergodist_distribution_run_duration_seconds",
			Help:    "Duration of distribution runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~410s
		},
		[]string{"service"},
	)

	DistributedNanoErg = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ergodist_distributed_nanoerg_total",
			Help: "Total nanoERG allocated across completed distributions",
		},
		[]string{"service"},
	)

	ExplorerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ergodist_explorer_requests_total",
			Help: "Total number of block explorer API requests",
		},
		[]string{"endpoint", "status"},
	)

	ParticipationRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ergodist_participation_requests_total",
			Help: "Total number of miner participation API requests",
		},
		[]string{"status"},
	)

	ScheduledJobSkipsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ergodist_scheduled_job_skips_total",
			Help: "Ticks skipped because the previous job was still running",
		},
	)
)
