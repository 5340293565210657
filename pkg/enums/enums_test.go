package enums

import "testing"

func TestOrderStatusTransitions(t *testing.T) {
	tests := []struct {
		status     OrderStatus
		terminal   bool
		cancelable bool
	}{
		{OrderStatusPending, false, true},
		{OrderStatusConfirmed, false, true},
		{OrderStatusPreparing, false, true},
		{OrderStatusShipped, false, false},
		{OrderStatusDelivered, true, false},
		{OrderStatusCancelled, true, false},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.status, got, tt.terminal)
		}
		if got := tt.status.Cancellable(); got != tt.cancelable {
			t.Errorf("%s.Cancellable() = %v, want %v", tt.status, got, tt.cancelable)
		}
	}
}

func TestParseOrderStatusRejectsUnknown(t *testing.T) {
	if _, err := ParseOrderStatus("refunded"); err == nil {
		t.Fatal("expected error for unknown order status")
	}
}

func TestPaymentMethodIsCard(t *testing.T) {
	if !PaymentMethodCreditCard.IsCard() || !PaymentMethodDebitCard.IsCard() {
		t.Error("card methods must report IsCard")
	}
	if PaymentMethodYape.IsCard() || PaymentMethodCashOnDelivery.IsCard() {
		t.Error("non-card methods must not report IsCard")
	}
}

func TestTransactionStatusTerminal(t *testing.T) {
	if TransactionStatusPending.IsTerminal() {
		t.Error("pending must not be terminal")
	}
	for _, s := range []TransactionStatus{TransactionStatusCompleted, TransactionStatusRejected, TransactionStatusError} {
		if !s.IsTerminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
}

func TestDeriveStockState(t *testing.T) {
	tests := []struct {
		stock   int
		minimum int
		want    StockState
	}{
		{0, 5, StockStateOutOfStock},
		{-1, 5, StockStateOutOfStock},
		{2, 5, StockStateCritical},
		{3, 5, StockStateLow},
		{5, 5, StockStateLow},
		{6, 5, StockStateNormal},
		{1, 2, StockStateCritical},
	}

	for _, tt := range tests {
		if got := DeriveStockState(tt.stock, tt.minimum); got != tt.want {
			t.Errorf("DeriveStockState(%d, %d) = %s, want %s", tt.stock, tt.minimum, got, tt.want)
		}
	}
}
