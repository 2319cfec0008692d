package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the settlement service.
type Metrics struct {
	// --- Ingress ---
	EventsReceived  *prometheus.CounterVec // labels: kind
	EventsRejected  *prometheus.CounterVec // labels: kind, reason
	WebhookDuration prometheus.Histogram

	// --- Idempotency ---
	Duplicates  *prometheus.CounterVec // labels: kind, tier
	GuardErrors prometheus.Counter

	// --- Settlement ---
	SettlementsApplied  *prometheus.CounterVec // labels: kind
	SettlementsNoop     prometheus.Counter
	SettlementFailures  *prometheus.CounterVec // labels: class (transient|permanent)
	SettlementDuration  prometheus.Histogram
	InventoryClamps     prometheus.Counter
	PointsAwarded       prometheus.Counter
	LedgerCreditedCents prometheus.Counter
	TargetsNotFound     *prometheus.CounterVec // labels: kind

	// --- Subscriptions ---
	SubscriptionUpserts *prometheus.CounterVec // labels: action (created|renewed|status_change)
	BusinessesCreated   prometheus.Counter

	// --- Outbox / side effects ---
	OutboxEnqueued  *prometheus.CounterVec // labels: kind
	OutboxDelivered *prometheus.CounterVec
	OutboxFailed    *prometheus.CounterVec
	OutboxDead      *prometheus.CounterVec
	OutboxDepth     prometheus.Gauge

	// --- Payouts ---
	PayoutsTriggered prometheus.Counter
	PayoutsFailed    prometheus.Counter

	// --- Query API ---
	QueryRequests *prometheus.CounterVec // labels: endpoint
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics registers all metrics with the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		EventsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "settle_events_received_total",
			Help: "Payment events accepted by the webhook, by kind.",
		}, []string{"kind"}),
		EventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "settle_events_rejected_total",
			Help: "Payment events rejected before processing, by kind and reason.",
		}, []string{"kind", "reason"}),
		WebhookDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "settle_webhook_duration_seconds",
			Help:    "End-to-end webhook handling latency.",
			Buckets: prometheus.DefBuckets,
		}),

		Duplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "settle_duplicates_total",
			Help: "Redelivered events short-circuited by the idempotency guard, by tier.",
		}, []string{"kind", "tier"}),
		GuardErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "settle_guard_errors_total",
			Help: "Idempotency guard DB lookup failures (treated as not-duplicate).",
		}),

		SettlementsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "settle_settlements_applied_total",
			Help: "Orders settled (Pending to Paid), by triggering event kind.",
		}, []string{"kind"}),
		SettlementsNoop: promauto.NewCounter(prometheus.CounterOpts{
			Name: "settle_settlements_noop_total",
			Help: "Settlement attempts that hit the fence on an already-paid order.",
		}),
		SettlementFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "settle_settlement_failures_total",
			Help: "Settlement transactions aborted, by failure class.",
		}, []string{"class"}),
		SettlementDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "settle_settlement_duration_seconds",
			Help:    "Duration of the settlement transaction per order.",
			Buckets: prometheus.DefBuckets,
		}),
		InventoryClamps: promauto.NewCounter(prometheus.CounterOpts{
			Name: "settle_inventory_clamps_total",
			Help: "Inventory decrements clamped at zero and flagged for review.",
		}),
		PointsAwarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "settle_points_awarded_total",
			Help: "Loyalty points awarded across buyers and sellers.",
		}),
		LedgerCreditedCents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "settle_ledger_credited_cents_total",
			Help: "Total cents credited to seller balances.",
		}),
		TargetsNotFound: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "settle_targets_not_found_total",
			Help: "Events referencing no local order or subscription, by kind.",
		}, []string{"kind"}),

		SubscriptionUpserts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "settle_subscription_upserts_total",
			Help: "Subscription rows created or updated, by action.",
		}, []string{"action"}),
		BusinessesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "settle_businesses_created_total",
			Help: "One-time sponsor business profiles created.",
		}),

		OutboxEnqueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "settle_outbox_enqueued_total",
			Help: "Side-effect records enqueued within settlement transactions.",
		}, []string{"kind"}),
		OutboxDelivered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "settle_outbox_delivered_total",
			Help: "Side-effect records delivered downstream.",
		}, []string{"kind"}),
		OutboxFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "settle_outbox_failed_total",
			Help: "Side-effect delivery attempts that failed and will retry.",
		}, []string{"kind"}),
		OutboxDead: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "settle_outbox_dead_total",
			Help: "Side-effect records parked after exhausting retries.",
		}, []string{"kind"}),
		OutboxDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "settle_outbox_depth",
			Help: "Pending side-effect records awaiting delivery.",
		}),

		PayoutsTriggered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "settle_payouts_triggered_total",
			Help: "Shipping payout commands published.",
		}),
		PayoutsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "settle_payouts_failed_total",
			Help: "Shipping payout publish failures (logged, never propagated).",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "settle_query_requests_total",
			Help: "Read API requests, by endpoint.",
		}, []string{"endpoint"}),
		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "settle_query_errors_total",
			Help: "Read API failures, by endpoint.",
		}, []string{"endpoint"}),
	}
}
