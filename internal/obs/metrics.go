// Package obs exposes the engine's operational metrics.
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	pairTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gtb_pair_transitions_total",
			Help: "Order pair state transitions.",
		},
		[]string{"algo", "from", "to"},
	)

	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gtb_orders_total",
			Help: "Broker order submissions by outcome.",
		},
		[]string{"side", "result"},
	)

	profitCents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gtb_profit_cents",
			Help: "Realized profit across completed pairs, in cents.",
		},
	)

	btcPriceCents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gtb_btc_price_cents",
			Help: "Last observed BTC-USD price, in cents.",
		},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gtb_action_queue_depth",
			Help: "Pending actions in the dispatch queue.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		pairTransitions,
		ordersTotal,
		profitCents,
		btcPriceCents,
		queueDepth,
	)
}

// PairTransition records one order pair state transition.
func PairTransition(algo, from, to string) {
	pairTransitions.WithLabelValues(algo, from, to).Inc()
}

// OrderResult records one broker order submission outcome.
func OrderResult(side, result string) {
	ordersTotal.WithLabelValues(side, result).Inc()
}

// SetProfitCents publishes the realized profit total.
func SetProfitCents(cents int64) {
	profitCents.Set(float64(cents))
}

// SetPriceCents publishes the last observed price.
func SetPriceCents(cents int64) {
	btcPriceCents.Set(float64(cents))
}

// SetQueueDepth publishes the dispatch queue backlog.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}
