package payments

import (
	"context"
	"encoding/json"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ecovivashop/ecoviva-backend/pkg/config"
	"github.com/ecovivashop/ecoviva-backend/pkg/db/models"
	"github.com/ecovivashop/ecoviva-backend/pkg/enums"
	pkgerrors "github.com/ecovivashop/ecoviva-backend/pkg/errors"
	"github.com/ecovivashop/ecoviva-backend/pkg/logger"
	"github.com/ecovivashop/ecoviva-backend/pkg/outbox"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:payments_" + uuid.NewString() + "?mode=memory&cache=shared"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := gdb.AutoMigrate(&models.PaymentTransaction{}, &models.OutboxEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

type testTxRunner struct {
	db *gorm.DB
}

func (r testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type recordingOutbox struct {
	events []outbox.DomainEvent
}

func (o *recordingOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	o.events = append(o.events, event)
	return nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestService(t *testing.T, gdb *gorm.DB, successRate float64) (Service, *recordingOutbox) {
	t.Helper()

	ob := &recordingOutbox{}
	logg := logger.New(logger.Options{ServiceName: "payments-test"})
	svc, err := NewService(NewRepository(gdb), testTxRunner{db: gdb}, ob, logg, nil,
		config.GatewayConfig{SuccessRate: successRate, Latency: 0},
		Options{
			Rand:  rand.New(rand.NewSource(7)),
			Sleep: noSleep,
		})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, ob
}

func cardRequest(orderNumber string) ProcessRequest {
	return ProcessRequest{
		OrderNumber: orderNumber,
		Amount:      decimal.NewFromFloat(189.90),
		Method:      enums.PaymentMethodCreditCard,
		Customer: CustomerSnapshot{
			Name:  "Lucia Paredes",
			Email: "lucia@example.com",
			Phone: "987654321",
		},
		Card: CardDetails{
			Holder:   "LUCIA PAREDES",
			Number:   "4111 1111 1111 1234",
			CVV:      "123",
			ExpMonth: 11,
			ExpYear:  time.Now().Year() + 2,
		},
	}
}

func TestProcessPayment_CardApproved(t *testing.T) {
	gdb := newTestDB(t)
	svc, ob := newTestService(t, gdb, 1.0)

	outcome, err := svc.ProcessPayment(context.Background(), cardRequest("EM1756720000001"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome.Status != enums.TransactionStatusCompleted {
		t.Fatalf("status = %s, want completed", outcome.Status)
	}
	if !strings.HasPrefix(outcome.AuthorizationCode, "CONF_") || len(outcome.AuthorizationCode) != len("CONF_")+8 {
		t.Fatalf("authorization code %q not in CONF_ format", outcome.AuthorizationCode)
	}
	if outcome.Reference != "**** **** **** 1234" {
		t.Fatalf("reference = %q, want masked card", outcome.Reference)
	}

	var stored models.PaymentTransaction
	if err := gdb.First(&stored, outcome.TransactionID).Error; err != nil {
		t.Fatalf("load transaction: %v", err)
	}
	if stored.Status != enums.TransactionStatusCompleted {
		t.Fatalf("stored status = %s", stored.Status)
	}
	if stored.AuthorizedAt == nil {
		t.Fatal("authorized_at not set")
	}
	if stored.Gateway != enums.GatewayCulqi {
		t.Fatalf("gateway = %s, want culqi", stored.Gateway)
	}

	if len(ob.events) != 1 || ob.events[0].EventType != outbox.EventPaymentCompleted {
		t.Fatalf("events = %+v, want single payment.completed", ob.events)
	}
	var payload PaymentCompletedEvent
	raw, _ := json.Marshal(ob.events[0].Data)
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("decode event payload: %v", err)
	}
	if payload.OrderNumber != "EM1756720000001" {
		t.Fatalf("event order number = %q", payload.OrderNumber)
	}
}

func TestProcessPayment_CardDeclined(t *testing.T) {
	gdb := newTestDB(t)
	svc, ob := newTestService(t, gdb, 0.0)

	outcome, err := svc.ProcessPayment(context.Background(), cardRequest("EM1756720000002"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome.Status != enums.TransactionStatusRejected {
		t.Fatalf("status = %s, want rejected", outcome.Status)
	}
	if outcome.AuthorizationCode != "" {
		t.Fatalf("declined attempt carries authorization code %q", outcome.AuthorizationCode)
	}

	var stored models.PaymentTransaction
	if err := gdb.First(&stored, outcome.TransactionID).Error; err != nil {
		t.Fatalf("load transaction: %v", err)
	}
	if stored.FailureReason == nil || *stored.FailureReason == "" {
		t.Fatal("failure reason not recorded")
	}

	if len(ob.events) != 1 || ob.events[0].EventType != outbox.EventPaymentRejected {
		t.Fatalf("events = %+v, want single payment.rejected", ob.events)
	}
}

func TestProcessPayment_CardValidationFailureResolvesRejected(t *testing.T) {
	gdb := newTestDB(t)
	svc, ob := newTestService(t, gdb, 1.0)

	req := cardRequest("EM1756720000003")
	req.Card.Number = "4111"

	outcome, err := svc.ProcessPayment(context.Background(), req)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome.Status != enums.TransactionStatusRejected {
		t.Fatalf("status = %s, want rejected", outcome.Status)
	}
	if !strings.Contains(outcome.Message, "card validation failed") {
		t.Fatalf("message = %q", outcome.Message)
	}
	if len(ob.events) != 0 {
		t.Fatalf("validation failure must not publish events, got %+v", ob.events)
	}
}

func TestProcessPayment_WalletIssuesPendingToken(t *testing.T) {
	gdb := newTestDB(t)
	svc, _ := newTestService(t, gdb, 1.0)

	outcome, err := svc.ProcessPayment(context.Background(), ProcessRequest{
		OrderNumber: "EM1756720000004",
		Amount:      decimal.NewFromInt(75),
		Method:      enums.PaymentMethodYape,
		Customer:    CustomerSnapshot{Name: "Marco Silva", Email: "marco@example.com"},
		WalletPhone: "912345678",
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome.Status != enums.TransactionStatusPending {
		t.Fatalf("status = %s, want pending", outcome.Status)
	}
	if !strings.HasPrefix(outcome.AuthorizationCode, "YAPE_") || len(outcome.AuthorizationCode) != len("YAPE_")+12 {
		t.Fatalf("token %q not in YAPE_ format", outcome.AuthorizationCode)
	}

	var stored models.PaymentTransaction
	if err := gdb.First(&stored, outcome.TransactionID).Error; err != nil {
		t.Fatalf("load transaction: %v", err)
	}
	if stored.AuthorizationCode == nil || *stored.AuthorizationCode != outcome.AuthorizationCode {
		t.Fatal("token not persisted on transaction")
	}
}

func TestProcessPayment_WalletRejectsBadPhone(t *testing.T) {
	gdb := newTestDB(t)
	svc, _ := newTestService(t, gdb, 1.0)

	_, err := svc.ProcessPayment(context.Background(), ProcessRequest{
		OrderNumber: "EM1756720000005",
		Amount:      decimal.NewFromInt(40),
		Method:      enums.PaymentMethodPlin,
		Customer:    CustomerSnapshot{Name: "Marco Silva", Email: "marco@example.com"},
		WalletPhone: "1912345678",
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestProcessPayment_CashOnDeliveryNeedsAddress(t *testing.T) {
	gdb := newTestDB(t)
	svc, _ := newTestService(t, gdb, 1.0)

	req := ProcessRequest{
		OrderNumber:  "EM1756720000006",
		Amount:       decimal.NewFromInt(60),
		Method:       enums.PaymentMethodCashOnDelivery,
		Customer:     CustomerSnapshot{Name: "Marco Silva", Email: "marco@example.com"},
		ContactPhone: "987654321",
	}
	_, err := svc.ProcessPayment(context.Background(), req)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("err = %v, want validation error", err)
	}

	req.DeliveryAddress = "Av. Arequipa 1234, Lima"
	outcome, err := svc.ProcessPayment(context.Background(), req)
	if err != nil {
		t.Fatalf("process with address: %v", err)
	}
	if outcome.Status != enums.TransactionStatusPending {
		t.Fatalf("status = %s, want pending", outcome.Status)
	}
}

func TestProcessPayment_RetryCountTracksPriorAttempts(t *testing.T) {
	gdb := newTestDB(t)
	svc, _ := newTestService(t, gdb, 0.0)

	first, err := svc.ProcessPayment(context.Background(), cardRequest("EM1756720000007"))
	if err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	second, err := svc.ProcessPayment(context.Background(), cardRequest("EM1756720000007"))
	if err != nil {
		t.Fatalf("second attempt: %v", err)
	}
	if first.TransactionID == second.TransactionID {
		t.Fatal("retry reused the transaction row")
	}

	var stored models.PaymentTransaction
	if err := gdb.First(&stored, second.TransactionID).Error; err != nil {
		t.Fatalf("load transaction: %v", err)
	}
	if stored.RetryCount != 1 {
		t.Fatalf("retry count = %d, want 1", stored.RetryCount)
	}
}

func TestConfirmPayment(t *testing.T) {
	gdb := newTestDB(t)
	svc, ob := newTestService(t, gdb, 1.0)

	outcome, err := svc.ProcessPayment(context.Background(), ProcessRequest{
		OrderNumber: "EM1756720000008",
		Amount:      decimal.NewFromInt(120),
		Method:      enums.PaymentMethodYape,
		Customer:    CustomerSnapshot{Name: "Lucia Paredes", Email: "lucia@example.com"},
		WalletPhone: "912345678",
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	token := outcome.AuthorizationCode

	_, err = svc.ConfirmPayment(context.Background(), outcome.TransactionID, "nope")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("short code err = %v, want validation error", err)
	}

	_, err = svc.ConfirmPayment(context.Background(), outcome.TransactionID, "YAPE_WRONGTOKEN1")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("mismatched code err = %v, want validation error", err)
	}

	var stored models.PaymentTransaction
	if err := gdb.First(&stored, outcome.TransactionID).Error; err != nil {
		t.Fatalf("load transaction: %v", err)
	}
	if stored.Status != enums.TransactionStatusPending {
		t.Fatalf("failed confirmation changed status to %s", stored.Status)
	}

	confirmed, err := svc.ConfirmPayment(context.Background(), outcome.TransactionID, token)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != enums.TransactionStatusCompleted {
		t.Fatalf("status = %s, want completed", confirmed.Status)
	}
	if len(ob.events) != 1 || ob.events[0].EventType != outbox.EventPaymentCompleted {
		t.Fatalf("events = %+v, want single payment.completed", ob.events)
	}

	_, err = svc.ConfirmPayment(context.Background(), outcome.TransactionID, token)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("double confirm err = %v, want state conflict", err)
	}
}

func TestConfirmPayment_UnknownTransaction(t *testing.T) {
	gdb := newTestDB(t)
	svc, _ := newTestService(t, gdb, 1.0)

	_, err := svc.ConfirmPayment(context.Background(), 9999, "YAPE_SOMETOKEN12")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestProcessPayment_UnsupportedMethod(t *testing.T) {
	gdb := newTestDB(t)
	svc, _ := newTestService(t, gdb, 1.0)

	outcome, err := svc.ProcessPayment(context.Background(), ProcessRequest{
		OrderNumber: "EM1756720000009",
		Amount:      decimal.NewFromInt(10),
		Method:      enums.PaymentMethod("barter"),
		Customer:    CustomerSnapshot{Name: "Lucia Paredes", Email: "lucia@example.com"},
	})
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}
	if outcome.Status != enums.TransactionStatusRejected {
		t.Fatalf("status = %s, want rejected", outcome.Status)
	}
	if outcome.Message != "unsupported method" {
		t.Fatalf("message = %q", outcome.Message)
	}

	// the attempt is still on record
	var row models.PaymentTransaction
	if err := gdb.First(&row, "id = ?", outcome.TransactionID).Error; err != nil {
		t.Fatalf("load transaction: %v", err)
	}
	if row.Status != enums.TransactionStatusRejected || row.Gateway != enums.GatewayUnknown {
		t.Fatalf("row = %+v, want rejected via unknown gateway", row)
	}
}

func TestProcessPayment_CardExpiryUsesInjectedClock(t *testing.T) {
	gdb := newTestDB(t)
	ob := &recordingOutbox{}
	logg := logger.New(logger.Options{ServiceName: "payments-test"})
	frozen := time.Date(2031, time.January, 1, 0, 0, 0, 0, time.UTC)
	svc, err := NewService(NewRepository(gdb), testTxRunner{db: gdb}, ob, logg, nil,
		config.GatewayConfig{SuccessRate: 1.0, Latency: 0},
		Options{
			Rand:  rand.New(rand.NewSource(7)),
			Sleep: noSleep,
			Now:   func() time.Time { return frozen },
		})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	expired := cardRequest("EM1756720000010")
	expired.Card.ExpYear = 2030
	outcome, err := svc.ProcessPayment(context.Background(), expired)
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}
	if outcome.Status != enums.TransactionStatusRejected || !strings.Contains(outcome.Message, "card expired") {
		t.Fatalf("outcome = %+v, want rejection for expired card", outcome)
	}

	current := cardRequest("EM1756720000011")
	current.Card.ExpYear = 2031
	outcome, err = svc.ProcessPayment(context.Background(), current)
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}
	if outcome.Status != enums.TransactionStatusCompleted {
		t.Fatalf("status = %s, want completed", outcome.Status)
	}
}
