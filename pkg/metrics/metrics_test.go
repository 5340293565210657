package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStoreMetricsRecordsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewStoreMetrics(reg)

	m.IncOrderCreated("yape")
	m.IncOrderCreated("yape")
	m.IncOrderCancelled()
	m.IncPaymentOutcome("credit_card", "completed")
	m.IncStockConflict()
	m.IncCompensationTask("queued")
	m.ObserveGatewayLatency(1500 * time.Millisecond)

	if got := testutil.ToFloat64(m.ordersCreated.WithLabelValues("yape")); got != 2 {
		t.Fatalf("expected 2 created orders, got %v", got)
	}
	if got := testutil.ToFloat64(m.ordersCancelled); got != 1 {
		t.Fatalf("expected 1 cancelled order, got %v", got)
	}
	if got := testutil.ToFloat64(m.paymentOutcomes.WithLabelValues("credit_card", "completed")); got != 1 {
		t.Fatalf("expected 1 payment outcome, got %v", got)
	}
	if got := testutil.ToFloat64(m.stockConflicts); got != 1 {
		t.Fatalf("expected 1 stock conflict, got %v", got)
	}
	if got := testutil.ToFloat64(m.compensationTasks.WithLabelValues("queued")); got != 1 {
		t.Fatalf("expected 1 queued compensation task, got %v", got)
	}
	if n := testutil.CollectAndCount(m.gatewayLatency); n != 1 {
		t.Fatalf("expected latency histogram registered, got %d series", n)
	}
}

func TestStoreMetricsNilSafe(t *testing.T) {
	var m *StoreMetrics
	m.IncOrderCreated("yape")
	m.IncOrderCancelled()
	m.IncPaymentOutcome("", "")
	m.IncStockConflict()
	m.IncCompensationTask("failed")
	m.ObserveGatewayLatency(time.Second)
}
