package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
		confirmOutcomesTotal,
		retriesTotal,
		refundsTotal,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payment records by kind and status transition (pending/succeeded/failed/refunded).",
		},
		[]string{"kind", "status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "The total monetary value of successful payments in minor units, labeled by currency.",
		},
		[]string{"currency"},
	)

	// outcome: granted|replay|declined|not_succeeded|error
	confirmOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_confirm_total",
			Help: "Confirm calls by outcome.",
		},
		[]string{"outcome"},
	)

	// result: ok|limit|not_retryable|gateway_error
	retriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_retries_total",
			Help: "Retry attempts by result.",
		},
		[]string{"result"},
	)

	// result: ok|revoke_pending|replayed|rejected
	refundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_refunds_total",
			Help: "Refunds by result.",
		},
		[]string{"result"},
	)
)

func IncPayment(kind, status string) {
	paymentsTotal.WithLabelValues(norm(kind), norm(status)).Inc()
}

func AddPaymentRevenue(currency string, amount int64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

func IncConfirm(outcome string) {
	confirmOutcomesTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncRetry(result string) {
	retriesTotal.WithLabelValues(norm(result)).Inc()
}

func IncRefund(result string) {
	refundsTotal.WithLabelValues(norm(result)).Inc()
}
