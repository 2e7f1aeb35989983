package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_notify", Name: "events_received_total", Help: "Change events received by entity kind"},
		[]string{"kind"},
	)
	EventsInvalid       = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_notify", Name: "events_invalid_total", Help: "Change events that failed to decode"})
	EventsDuplicate     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_notify", Name: "events_duplicate_total", Help: "Redelivered events suppressed by id"})
	TransitionsFired    = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "ride_notify", Name: "transitions_fired_total", Help: "Transitions detected"}, []string{"transition"})
	NotificationsSent   = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "ride_notify", Name: "notifications_sent_total", Help: "Push notifications accepted by the transport"}, []string{"type"})
	NotificationsSkip   = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "ride_notify", Name: "notifications_skipped_total", Help: "Notifications not sent"}, []string{"reason"})
	NotificationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "ride_notify", Name: "notifications_failed_total", Help: "Push transport failures"}, []string{"class"})
	TokensCleared       = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_notify", Name: "tokens_cleared_total", Help: "Delivery tokens cleared after a permanent failure"})

	MatchCandidates = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ride_notify",
		Name:      "match_candidates",
		Help:      "Drivers matched per new ride request",
		Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
	})
	MatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "ride_notify", Name: "match_latency_seconds", Help: "Match latency seconds"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_notify", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_notify",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

var (
	MessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_notify", Name: "consumer_messages_consumed_total", Help: "Broker messages consumed"},
		[]string{"source"},
	)
	ConsumerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_notify", Name: "consumer_errors_total", Help: "Broker read or acknowledgement errors"},
		[]string{"source", "op"},
	)
	EventsRelayed = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_notify", Name: "events_relayed_total", Help: "Ingested events published to the broker"})
)
