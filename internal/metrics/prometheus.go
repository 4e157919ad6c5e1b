package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch pipeline metrics
var (
	DispatchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_queue_depth",
			Help: "Number of tasks currently waiting in the dispatch channel",
		},
	)

	RequestsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_requests_enqueued_total",
			Help: "Total number of dispatch tasks enqueued",
		},
		[]string{"source"}, // api, scheduler
	)

	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_sends_total",
			Help: "Total number of dispatch tasks processed by the sender worker",
		},
		[]string{"outcome"}, // sent, failed, skipped
	)

	SendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_send_duration_seconds",
			Help:    "Duration of provider send calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	SchedulerPromotedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_requests_promoted_total",
			Help: "Total number of due scheduled requests promoted to the dispatch channel",
		},
	)
)

// Reconciliation metrics
var (
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total number of provider webhook events processed",
		},
		[]string{"kind", "result"}, // result: applied, duplicate, unmatched
	)

	OpenPingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "open_pings_total",
			Help: "Total number of open-tracking pings received",
		},
		[]string{"result"}, // recorded, duplicate, invalid
	)
)

// API metrics
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
