package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	refreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "countrysync_refresh_total",
			Help: "Refresh runs by outcome.",
		},
		[]string{"outcome"},
	)

	refreshRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "countrysync_refresh_records_total",
			Help: "Records handled by refresh runs, by result.",
		},
		[]string{"result"},
	)

	refreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "countrysync_refresh_duration_seconds",
		Help:    "Duration of refresh runs in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	sourceFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "countrysync_source_fetch_duration_seconds",
			Help:    "Duration of upstream fetches in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)
)
