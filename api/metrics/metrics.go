// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "entitlements"

// maxLabelLen bounds provider-controlled label values such as event types.
const maxLabelLen = 64

var (
	WebhookRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_requests_total",
		Help:      "Webhook deliveries by event type and response status.",
	}, []string{"event_type", "status"})

	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "webhook_duration_seconds",
		Help:      "Time spent reconciling a webhook delivery.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	StoreWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_writes_total",
		Help:      "Entitlement store writes by operation and result.",
	}, []string{"op", "result"})

	CheckoutSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_sessions_total",
		Help:      "Checkout session requests by result.",
	}, []string{"result"})

	NotifierSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "notifier_subscribers",
		Help:      "Open change-notifier subscriptions.",
	})

	NotifierDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifier_dropped_total",
		Help:      "Updates dropped because a subscriber buffer was full.",
	})
)

// Label returns a bounded, non-empty label value.
func Label(s string) string {
	if s == "" {
		return "unknown"
	}
	s = strings.ReplaceAll(s, " ", "_")
	if len(s) > maxLabelLen {
		s = s[:maxLabelLen]
	}
	return s
}

// Result maps an error to the "ok"/"error" result label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
