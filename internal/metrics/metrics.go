// AngelaMos | 2026
// metrics.go

package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "webhook_events_total",
			Help:      "Payment webhook events by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	WebhookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "portal",
			Name:      "webhook_processing_seconds",
			Help:      "Time taken to reconcile a webhook event",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	PurchasesRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "purchases_recorded_total",
			Help:      "Purchase rows written by status and payment type",
		},
		[]string{"status", "payment_type"},
	)

	PlansCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "payment_plans_completed_total",
			Help:      "Payment plans flipped to complete",
		},
	)

	CheckoutSessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "checkout_sessions_total",
			Help:      "Checkout initiations by price type and outcome",
		},
		[]string{"price_type", "outcome"},
	)

	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "notifications_total",
			Help:      "Outbound notification tasks by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	EntitlementDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "entitlement_denials_total",
			Help:      "Content requests refused by the entitlement check",
		},
		[]string{"resource"},
	)

	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by a rate limit scope, and limiter fallbacks",
		},
		[]string{"scope", "reason"},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			WebhookEvents,
			WebhookDuration,
			PurchasesRecorded,
			PlansCompleted,
			CheckoutSessions,
			Notifications,
			EntitlementDenials,
			RateLimited,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
