package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "food",
		Subsystem: "orders",
		Name:      "transitions_total",
		Help:      "Committed order status transitions.",
	}, []string{"from", "to"})

	Reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "food",
		Subsystem: "orders",
		Name:      "reconciliations_total",
		Help:      "Reconciliation calls by caller and outcome (applied, noop, stale).",
	}, []string{"source", "outcome"})

	Lapses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "food",
		Subsystem: "expiry",
		Name:      "lapses_total",
		Help:      "Expiry lapses handled by the listener, by result.",
	}, []string{"result"})

	CartCheckouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "food",
		Subsystem: "carts",
		Name:      "checkouts_total",
		Help:      "Carts converted into orders.",
	})

	OutboxPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "food",
		Subsystem: "outbox",
		Name:      "published_total",
		Help:      "Outbox rows published to Kafka, by topic.",
	}, []string{"topic"})

	KitchenTickets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "food",
		Subsystem: "kitchen",
		Name:      "dispatches_total",
		Help:      "Kitchen dispatch messages by result (ticket, duplicate, failed).",
	}, []string{"result"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "food",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "status"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
