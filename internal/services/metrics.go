// Prometheus collectors for the payment domain. HTTP-level metrics live in
// the middleware package; these count business events regardless of which
// endpoint produced them.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// paymentsInitiated counts STK pushes accepted by the gateway (a pending
	// ledger row was created).
	paymentsInitiated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_initiated_total",
			Help: "Total number of STK push requests accepted by the gateway.",
		},
	)

	// callbacksReconciled counts processed result callbacks by outcome.
	// "replayed" marks idempotent re-deliveries that changed nothing.
	callbacksReconciled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_callbacks_total",
			Help: "Total number of reconciled result callbacks by outcome.",
		},
		[]string{"result"},
	)

	// callbacksOrphaned counts callbacks that referenced an unknown checkout
	// request id and were recorded as orphan terminal rows.
	callbacksOrphaned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_callbacks_orphaned_total",
			Help: "Total number of callbacks recorded without a matching pending payment.",
		},
	)
)

func init() {
	prometheus.MustRegister(paymentsInitiated, callbacksReconciled, callbacksOrphaned)
}
