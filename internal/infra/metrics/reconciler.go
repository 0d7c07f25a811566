package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(reconciledTotal, eventsPublishedTotal, webhooksTotal) }

var (
	reconciledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_items_total",
			Help: "Items handled by the background reconciler, labeled by source and result.",
		},
		[]string{"source", "result"}, // source: 'pending', 'refund'
	)

	eventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_events_published_total",
			Help: "Entitlement events handed to the broker, labeled by type and status.",
		},
		[]string{"type", "status"},
	)

	webhooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_webhooks_total",
			Help: "Inbound gateway notifications, labeled by event kind or failure.",
		},
		[]string{"result"},
	)
)

func IncReconciled(source, result string) {
	reconciledTotal.WithLabelValues(norm(source), norm(result)).Inc()
}

func IncEventPublished(eventType, status string) {
	eventsPublishedTotal.WithLabelValues(norm(eventType), norm(status)).Inc()
}

func IncWebhook(result string) {
	webhooksTotal.WithLabelValues(norm(result)).Inc()
}
