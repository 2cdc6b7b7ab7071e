package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DistributionRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bounty_distribution_runs_total",
			Help: "Total number of distribution runs",
		},
		[]string{"outcome"},
	)

	DistributionRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bounty_distribution_run_duration_seconds",
			Help:    "Duration of distribution runs, settlement included",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 0.05s to ~102s
		},
	)

	SettledAmountTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bounty_settled_amount_usd_total",
			Help: "Total USD amount handed to settlement",
		},
	)

	ManifestEntries = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bounty_manifest_entries",
			Help:    "Number of wallets per settled manifest",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1 to 512
		},
	)

	MetricsFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bounty_metrics_fetch_total",
			Help: "Total number of analytics fetches",
		},
		[]string{"platform", "outcome"},
	)

	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bounty_job_runs_total",
			Help: "Total number of scheduled job runs",
		},
		[]string{"job", "outcome"},
	)

	JobRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bounty_job_run_duration_seconds",
			Help:    "Duration of scheduled job runs",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 0.01s to ~82s
		},
		[]string{"job"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bounty_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)
