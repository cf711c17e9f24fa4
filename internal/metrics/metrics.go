package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habittracker_http_requests_total",
			Help: "Total HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)
	RateLimitBlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habittracker_rate_limit_blocked_total",
			Help: "Total requests blocked by the rate limiter",
		},
		[]string{"path"},
	)
	BusEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habittracker_bus_events_total",
			Help: "Cross-slice events emitted by type",
		},
		[]string{"type"},
	)
	BusListenerPanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habittracker_bus_listener_panics_total",
			Help: "Cross-slice listeners that panicked during delivery",
		},
		[]string{"type"},
	)
	FeedPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habittracker_feed_published_total",
			Help: "Row changes published to the change feed",
		},
		[]string{"table", "type"},
	)
	FeedPublishErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habittracker_feed_publish_errors_total",
			Help: "Row changes that failed to publish",
		},
		[]string{"table"},
	)
	FeedDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habittracker_feed_dropped_total",
			Help: "Row changes dropped because a subscription queue was full",
		},
		[]string{"table"},
	)
	FeedDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habittracker_feed_delivered_total",
			Help: "Row changes delivered to realtime channels",
		},
		[]string{"table", "type"},
	)
	RealtimeChannels = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "habittracker_realtime_channels",
			Help: "Active realtime channels",
		},
	)
	LiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "habittracker_live_sessions",
			Help: "Connected websocket sessions",
		},
	)
	StaleAnalytics = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "habittracker_analytics_stale_responses_total",
			Help: "Analytics responses discarded because a newer request was issued",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequests,
		RateLimitBlocked,
		BusEvents,
		BusListenerPanics,
		FeedPublished,
		FeedPublishErrors,
		FeedDropped,
		FeedDelivered,
		RealtimeChannels,
		LiveSessions,
		StaleAnalytics,
	)
}
