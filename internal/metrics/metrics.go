package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaygate_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relaygate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	MessagesDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaygate_messages_dispatched_total",
			Help: "Per-recipient delivery attempts by message kind and outcome.",
		},
		[]string{"kind", "status"},
	)

	DispatchDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaygate_dispatch_denials_total",
			Help: "Recipients denied before any provider call, by reason.",
		},
		[]string{"reason"},
	)

	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relaygate_provider_request_duration_seconds",
			Help:    "Outbound provider request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		MessagesDispatchedTotal,
		DispatchDenialsTotal,
		ProviderRequestDuration,
	)
}
