// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RealtimeReconnects counts reconnection attempts scheduled by realtime channels.
	RealtimeReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "velada_realtime_reconnects_total",
			Help: "Total number of scheduled realtime reconnection attempts",
		},
	)

	// RealtimeFallbacks counts inbound messages that could not be decoded.
	RealtimeFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "velada_realtime_fallbacks_total",
			Help: "Total number of fallback signals raised for malformed realtime messages",
		},
	)

	// HubConnections is the number of live event subscribers on the server.
	HubConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "velada_event_subscribers",
			Help: "Number of websocket clients currently subscribed to session events",
		},
	)

	// EventsPublished counts domain events published after a successful write.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velada_events_published_total",
			Help: "Total number of session events published",
		},
		[]string{"type"},
	)

	// HTTPRequests counts API requests by method, route and status.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velada_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPDuration tracks API request latency.
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "velada_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "route"},
	)
)
