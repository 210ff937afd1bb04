// Package metrics defines the Prometheus instrumentation for the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Poll scheduler / aggregation metrics
var (
	// PollCyclesTotal counts completed aggregation cycles by outcome
	// (ok, partial, failed).
	PollCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poll_cycles_total",
			Help: "Completed aggregation cycles by outcome",
		},
		[]string{"outcome"},
	)

	// PollCyclesSkipped counts scheduler firings skipped because the
	// previous cycle for the event was still in flight.
	PollCyclesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "poll_cycles_skipped_total",
			Help: "Scheduler firings skipped due to an in-flight cycle",
		},
	)

	// PollCycleDuration tracks aggregation cycle latency in seconds.
	PollCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "poll_cycle_duration_seconds",
			Help:    "Aggregation cycle duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// ActiveEvents tracks the number of events with a running poller.
	ActiveEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_events",
			Help: "Events with a running poll scheduler",
		},
	)
)

// External gateway metrics
var (
	// GatewayRequestsTotal counts gateway batch calls by status (ok, error).
	GatewayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "External metrics API batch calls by status",
		},
		[]string{"status"},
	)

	// GatewayRequestDuration tracks gateway call latency in seconds.
	GatewayRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "External metrics API call duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// TitleCacheHits counts title lookups served from cache vs the API.
	TitleCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "title_cache_hits_total",
			Help: "Video title lookups by source (cache, api)",
		},
		[]string{"source"},
	)
)

// Persistence metrics
var (
	// SampleWriteErrors counts failed sample writes; the live snapshot
	// update proceeds regardless.
	SampleWriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sample_write_errors_total",
			Help: "Failed time-series sample writes",
		},
	)
)

// Broadcast hub metrics
var (
	// HubSubscribers tracks currently registered live-update subscribers.
	HubSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_subscribers",
			Help: "Currently registered live-update subscribers",
		},
	)

	// HubMessagesTotal counts messages fanned out by kind (init, tick).
	HubMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_messages_total",
			Help: "Messages delivered to subscribers by kind",
		},
		[]string{"kind"},
	)

	// HubSlowSubscribersEvicted counts subscribers pruned because their
	// buffer was full.
	HubSlowSubscribersEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_slow_subscribers_evicted_total",
			Help: "Subscribers pruned for not keeping up",
		},
	)
)

// HTTP metrics
var (
	// HTTPErrorsTotal tracks HTTP errors by type.
	HTTPErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total HTTP errors by error type",
		},
		[]string{"type"},
	)
)
