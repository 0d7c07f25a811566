package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(gatewayCallsLatencyMs) }

var gatewayCallsLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "payment_gateway_latency_ms",
		Help:    "Payment gateway call latency distribution in milliseconds.",
		Buckets: []float64{25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000},
	},
	[]string{"gateway", "op", "success"},
)

// ObserveGatewayCall records one call to the payment processor.
func ObserveGatewayCall(gateway, op string, latencyMs int64, success bool) {
	gatewayCallsLatencyMs.WithLabelValues(norm(gateway), norm(op), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}
