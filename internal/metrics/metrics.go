package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dmsconsole_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dmsconsole_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Webhook metrics
	WebhookRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dmsconsole_webhook_requests_total",
			Help: "Inbound webhook requests by outcome",
		},
		[]string{"outcome"}, // "accepted", "forbidden", "indeterminate", "not_connected"
	)

	InboundEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dmsconsole_inbound_events_total",
			Help: "Inbound events dispatched by type",
		},
		[]string{"type"},
	)

	// Outbound metrics
	OutboundSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dmsconsole_outbound_sends_total",
			Help: "Outbound sends by kind and outcome",
		},
		[]string{"kind", "outcome"}, // outcome: "success", "rejected", "transport_error"
	)

	OutboundDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dmsconsole_outbound_send_duration_seconds",
			Help:    "Outbound send latency",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)

	// State metrics
	ActivityRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dmsconsole_activity_records_total",
			Help: "Activity records appended by kind",
		},
		[]string{"kind"},
	)

	CredentialSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dmsconsole_credential_sessions",
			Help: "Stored credential sessions",
		},
	)

	CredentialEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dmsconsole_credential_evictions_total",
			Help: "Credential sessions evicted for inactivity",
		},
	)

	CustomerSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dmsconsole_customer_sessions",
			Help: "Tracked customer conversations",
		},
	)

	WSClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dmsconsole_ws_clients",
			Help: "Connected websocket viewers",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dmsconsole_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dmsconsole_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)
)
