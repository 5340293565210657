package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics records order, payment and inventory activity.
type StoreMetrics struct {
	ordersCreated     *prometheus.CounterVec
	ordersCancelled   prometheus.Counter
	paymentOutcomes   *prometheus.CounterVec
	gatewayLatency    prometheus.Histogram
	stockConflicts    prometheus.Counter
	compensationTasks *prometheus.CounterVec
}

// NewStoreMetrics registers the storefront metrics on the provided registerer.
func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	if reg == nil {
		return &StoreMetrics{}
	}
	ordersCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Orders created, labeled by payment method.",
	}, []string{"method"})
	ordersCancelled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Orders cancelled.",
	})
	paymentOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_outcomes_total",
		Help: "Payment attempts, labeled by method and resulting status.",
	}, []string{"method", "status"})
	gatewayLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_gateway_latency_seconds",
		Help:    "Simulated gateway round-trip latency.",
		Buckets: prometheus.DefBuckets,
	})
	stockConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inventory_decrement_conflicts_total",
		Help: "Decrements rejected because stock was insufficient at write time.",
	})
	compensationTasks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "compensation_tasks_total",
		Help: "Stock restoration tasks, labeled by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(ordersCreated, ordersCancelled, paymentOutcomes, gatewayLatency, stockConflicts, compensationTasks)
	return &StoreMetrics{
		ordersCreated:     ordersCreated,
		ordersCancelled:   ordersCancelled,
		paymentOutcomes:   paymentOutcomes,
		gatewayLatency:    gatewayLatency,
		stockConflicts:    stockConflicts,
		compensationTasks: compensationTasks,
	}
}

// IncOrderCreated increments the created counter for the payment method.
func (m *StoreMetrics) IncOrderCreated(method string) {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.WithLabelValues(normalizeLabel(method)).Inc()
}

// IncOrderCancelled increments the cancelled counter.
func (m *StoreMetrics) IncOrderCancelled() {
	if m == nil || m.ordersCancelled == nil {
		return
	}
	m.ordersCancelled.Inc()
}

// IncPaymentOutcome records a payment attempt result.
func (m *StoreMetrics) IncPaymentOutcome(method, status string) {
	if m == nil || m.paymentOutcomes == nil {
		return
	}
	m.paymentOutcomes.WithLabelValues(normalizeLabel(method), normalizeLabel(status)).Inc()
}

// ObserveGatewayLatency records a simulated gateway round trip.
func (m *StoreMetrics) ObserveGatewayLatency(d time.Duration) {
	if m == nil || m.gatewayLatency == nil {
		return
	}
	m.gatewayLatency.Observe(d.Seconds())
}

// IncStockConflict records a decrement rejected at write time.
func (m *StoreMetrics) IncStockConflict() {
	if m == nil || m.stockConflicts == nil {
		return
	}
	m.stockConflicts.Inc()
}

// IncCompensationTask records a restoration task outcome (restored, queued, failed).
func (m *StoreMetrics) IncCompensationTask(outcome string) {
	if m == nil || m.compensationTasks == nil {
		return
	}
	m.compensationTasks.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
