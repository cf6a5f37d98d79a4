// Package metrics exposes Prometheus instrumentation for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EmailsProcessed counts queue entries by dispatch outcome:
	// sent, failed, requeued, skipped.
	EmailsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coldflow_emails_processed_total",
			Help: "Queue entries processed by dispatch outcome",
		},
		[]string{"outcome"},
	)

	// SendDuration observes the provider round trip for one send.
	SendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coldflow_send_duration_seconds",
			Help:    "Time spent sending one email through the provider",
			Buckets: prometheus.DefBuckets,
		},
	)

	// TokenRefreshes counts refresh attempts by result: ok, failed.
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coldflow_token_refreshes_total",
			Help: "OAuth token refresh attempts by result",
		},
		[]string{"result"},
	)

	// TrackingEvents counts recorded engagement signals by type.
	TrackingEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coldflow_tracking_events_total",
			Help: "Engagement events recorded by type",
		},
		[]string{"event_type"},
	)

	// QueueBatchSize observes how many candidates each dispatch cycle saw.
	QueueBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coldflow_queue_batch_size",
			Help:    "Candidate entries picked up per dispatch cycle",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		},
	)
)
