package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "platform_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Realtime metrics
	ConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "platform_ws_connections_active",
			Help: "Currently open WebSocket sessions",
		},
		[]string{"kind"}, // "chat" or "notifications"
	)

	ConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_ws_connections_rejected_total",
			Help: "WebSocket sessions rejected during authorization",
		},
		[]string{"kind", "reason"},
	)

	MessagesBroadcast = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "platform_chat_messages_broadcast_total",
			Help: "Chat messages persisted and published to their room group",
		},
	)

	MessagesReplayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "platform_chat_messages_replayed_total",
			Help: "History messages delivered to joining sessions",
		},
	)

	NotificationsDispatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "platform_notifications_dispatched_total",
			Help: "Notifications persisted and published",
		},
	)

	BusDeliveriesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "platform_bus_deliveries_dropped_total",
			Help: "Bus deliveries dropped because a subscriber buffer was full",
		},
	)
)
