package inventory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ecovivashop/ecoviva-backend/pkg/db/models"
	"github.com/ecovivashop/ecoviva-backend/pkg/enums"
	pkgerrors "github.com/ecovivashop/ecoviva-backend/pkg/errors"
	"github.com/ecovivashop/ecoviva-backend/pkg/logger"
	"github.com/ecovivashop/ecoviva-backend/pkg/outbox"
)

type testTxRunner struct {
	db *gorm.DB
}

func (r testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.InventoryRecord{}, &models.InventoryMovement{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(NewRepository(db), testTxRunner{db: db}, logger.New(logger.Options{ServiceName: "test"}), nil, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func seedRecord(t *testing.T, db *gorm.DB, record models.InventoryRecord) models.InventoryRecord {
	t.Helper()
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("seed inventory record: %v", err)
	}
	return record
}

func TestDecrementHappyPathAppendsSaleMovement(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	seedRecord(t, db, models.InventoryRecord{ProductID: 1, Stock: 5, Minimum: 2, Active: true})

	if err := svc.Decrement(ctx, 1, 3, "checkout"); err != nil {
		t.Fatalf("Decrement: %v", err)
	}

	record, err := svc.GetRecord(ctx, 1)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if record.Stock != 2 {
		t.Fatalf("expected stock 2, got %d", record.Stock)
	}
	if record.UpdatedBy != "checkout" {
		t.Fatalf("expected actor stamp, got %q", record.UpdatedBy)
	}
	if got := record.State(); got != enums.StockStateLow {
		t.Fatalf("expected low stock state, got %s", got)
	}

	movements, err := svc.ListMovements(ctx, 1, 10)
	if err != nil {
		t.Fatalf("ListMovements: %v", err)
	}
	if len(movements) != 1 {
		t.Fatalf("expected 1 movement, got %d", len(movements))
	}
	if movements[0].Delta != -3 || movements[0].Reason != enums.MovementReasonSale {
		t.Fatalf("unexpected movement %+v", movements[0])
	}
}

func TestDecrementInsufficientStockLeavesCounterUntouched(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	seedRecord(t, db, models.InventoryRecord{ProductID: 2, Stock: 2, Minimum: 2, Active: true})

	err := svc.Decrement(ctx, 2, 3, "checkout")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}

	record, _ := svc.GetRecord(ctx, 2)
	if record.Stock != 2 {
		t.Fatalf("stock must be unchanged, got %d", record.Stock)
	}
	movements, _ := svc.ListMovements(ctx, 2, 10)
	if len(movements) != 0 {
		t.Fatalf("no movement must be written on rejection, got %d", len(movements))
	}
}

func TestDecrementMissingRecord(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)

	err := svc.Decrement(context.Background(), 99, 1, "checkout")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestDecrementNeverOvercommits(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	seedRecord(t, db, models.InventoryRecord{ProductID: 3, Stock: 10, Minimum: 1, Active: true})

	succeeded := 0
	for i := 0; i < 15; i++ {
		if err := svc.Decrement(ctx, 3, 1, "checkout"); err == nil {
			succeeded++
		}
	}
	if succeeded != 10 {
		t.Fatalf("expected exactly 10 successful decrements, got %d", succeeded)
	}

	record, _ := svc.GetRecord(ctx, 3)
	if record.Stock != 0 {
		t.Fatalf("expected stock drained to 0, got %d", record.Stock)
	}
}

// decrementWithRetry keeps retrying on driver lock errors so the
// concurrent test exercises the guarded UPDATE, not SQLite's single
// writer. Insufficient stock is a terminal outcome, not a retry.
func decrementWithRetry(svc Service, productID uint) (bool, error) {
	ctx := context.Background()
	for attempt := 0; attempt < 200; attempt++ {
		err := svc.Decrement(ctx, productID, 1, "checkout")
		if err == nil {
			return true, nil
		}
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeInsufficientStock {
			return false, nil
		}
		time.Sleep(time.Millisecond)
	}
	return false, fmt.Errorf("decrement kept failing on contention")
}

func TestConcurrentDecrementsDrainToExactlyZero(t *testing.T) {
	const stock = 16

	db := newTestDB(t)
	svc := newTestService(t, db)
	seedRecord(t, db, models.InventoryRecord{ProductID: 9, Stock: stock, Minimum: 1, Active: true})

	var wg sync.WaitGroup
	var succeeded atomic.Int64
	errs := make(chan error, stock+4)

	// a few more takers than units, so some must lose
	for i := 0; i < stock+4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := decrementWithRetry(svc, 9)
			if err != nil {
				errs <- err
				return
			}
			if ok {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent decrement: %v", err)
	}

	if got := succeeded.Load(); got != stock {
		t.Fatalf("expected exactly %d successful decrements, got %d", stock, got)
	}
	record, err := svc.GetRecord(context.Background(), 9)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if record.Stock != 0 {
		t.Fatalf("expected stock drained to 0, got %d", record.Stock)
	}
}

func TestIncrementRestoresStockAndIgnoresMaximum(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	max := 10
	seedRecord(t, db, models.InventoryRecord{ProductID: 4, Stock: 9, Minimum: 2, Maximum: &max, Active: true})

	if err := svc.Increment(ctx, 4, 5, "ops", enums.MovementReasonRestock); err != nil {
		t.Fatalf("Increment: %v", err)
	}

	record, _ := svc.GetRecord(ctx, 4)
	if record.Stock != 14 {
		t.Fatalf("maximum is advisory, expected 14, got %d", record.Stock)
	}

	err := svc.Increment(ctx, 123, 1, "ops", enums.MovementReasonRestock)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found for unknown product, got %v", err)
	}
}

func TestSetStockRecordsAdjustmentDelta(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	seedRecord(t, db, models.InventoryRecord{ProductID: 5, Stock: 8, Minimum: 2, Active: true})

	if err := svc.SetStock(ctx, 5, 3, "recount"); err != nil {
		t.Fatalf("SetStock: %v", err)
	}
	record, _ := svc.GetRecord(ctx, 5)
	if record.Stock != 3 {
		t.Fatalf("expected stock 3, got %d", record.Stock)
	}
	movements, _ := svc.ListMovements(ctx, 5, 10)
	if len(movements) != 1 || movements[0].Delta != -5 || movements[0].Reason != enums.MovementReasonManualAdjustment {
		t.Fatalf("unexpected adjustment movement %+v", movements)
	}

	if err := svc.SetStock(ctx, 5, -1, "recount"); pkgerrors.As(err) == nil {
		t.Fatal("expected validation error for negative stock")
	}
}

func TestCheckAvailability(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	seedRecord(t, db, models.InventoryRecord{ProductID: 6, Stock: 4, Minimum: 2, Active: true})
	seedRecord(t, db, models.InventoryRecord{ProductID: 7, Stock: 4, Minimum: 2, Active: false})

	ok, err := svc.CheckAvailability(ctx, 6, 4)
	if err != nil || !ok {
		t.Fatalf("expected available, got ok=%v err=%v", ok, err)
	}
	ok, _ = svc.CheckAvailability(ctx, 6, 5)
	if ok {
		t.Fatal("expected unavailable beyond stock")
	}
	ok, _ = svc.CheckAvailability(ctx, 7, 1)
	if ok {
		t.Fatal("inactive record must be unavailable")
	}
	ok, err = svc.CheckAvailability(ctx, 999, 1)
	if err != nil || ok {
		t.Fatalf("missing record is unavailable, not an error: ok=%v err=%v", ok, err)
	}
}

func TestListAlertsOrdersByUrgency(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	// ratios: p10 0/5=0, p11 1/4=0.25, p12 3/6=0.5, p13 above minimum
	seedRecord(t, db, models.InventoryRecord{ProductID: 12, Stock: 3, Minimum: 6, Active: true})
	seedRecord(t, db, models.InventoryRecord{ProductID: 10, Stock: 0, Minimum: 5, Active: true})
	seedRecord(t, db, models.InventoryRecord{ProductID: 11, Stock: 1, Minimum: 4, Active: true})
	seedRecord(t, db, models.InventoryRecord{ProductID: 13, Stock: 9, Minimum: 2, Active: true})

	alerts, err := svc.ListAlerts(ctx)
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(alerts) != 3 {
		t.Fatalf("expected 3 alerts, got %d", len(alerts))
	}
	wantOrder := []uint{10, 11, 12}
	for i, want := range wantOrder {
		if alerts[i].ProductID != want {
			t.Fatalf("alert %d: expected product %d, got %d", i, want, alerts[i].ProductID)
		}
	}
	if alerts[0].State() != enums.StockStateOutOfStock {
		t.Fatalf("expected most urgent alert out of stock, got %s", alerts[0].State())
	}
}

func TestUpdateThresholdsLeavesStockAlone(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	seedRecord(t, db, models.InventoryRecord{ProductID: 7, Stock: 12, Minimum: 3, Active: true})

	minimum := 5
	maximum := 40
	location := "B-03"
	err := svc.UpdateThresholds(ctx, 7, ThresholdUpdate{Minimum: &minimum, Maximum: &maximum, Location: &location}, "ops")
	if err != nil {
		t.Fatalf("UpdateThresholds: %v", err)
	}

	record, err := svc.GetRecord(ctx, 7)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if record.Stock != 12 {
		t.Fatalf("expected stock untouched at 12, got %d", record.Stock)
	}
	if record.Minimum != 5 {
		t.Fatalf("expected minimum 5, got %d", record.Minimum)
	}
	if record.Maximum == nil || *record.Maximum != 40 {
		t.Fatalf("expected maximum 40, got %v", record.Maximum)
	}
	if record.Location == nil || *record.Location != "B-03" {
		t.Fatalf("expected location B-03, got %v", record.Location)
	}
	if record.UpdatedBy != "ops" {
		t.Fatalf("expected actor stamp, got %q", record.UpdatedBy)
	}
}

func TestUpdateThresholdsValidation(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	seedRecord(t, db, models.InventoryRecord{ProductID: 8, Stock: 1, Minimum: 1, Active: true})

	if err := svc.UpdateThresholds(ctx, 8, ThresholdUpdate{}, "ops"); pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for empty update, got %v", err)
	}

	negative := -1
	if err := svc.UpdateThresholds(ctx, 8, ThresholdUpdate{Minimum: &negative}, "ops"); pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for negative minimum, got %v", err)
	}

	minimum := 10
	maximum := 4
	if err := svc.UpdateThresholds(ctx, 8, ThresholdUpdate{Minimum: &minimum, Maximum: &maximum}, "ops"); pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for maximum below minimum, got %v", err)
	}

	location := "Z-99"
	if err := svc.UpdateThresholds(ctx, 99, ThresholdUpdate{Location: &location}, "ops"); pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found for unknown product, got %v", err)
	}
}

type recordingAlertSink struct {
	events []outbox.DomainEvent
}

func (s *recordingAlertSink) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

func TestDecrementEmitsAlertOnThresholdCross(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	sink := &recordingAlertSink{}
	svc, err := NewService(NewRepository(db), testTxRunner{db: db}, logger.New(logger.Options{ServiceName: "test"}), nil, sink)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()
	seedRecord(t, db, models.InventoryRecord{ProductID: 21, Stock: 6, Minimum: 5, Active: true})

	// 6 -> 5 crosses into low
	if err := svc.Decrement(ctx, 21, 1, "checkout"); err != nil {
		t.Fatalf("Decrement: %v", err)
	}
	if len(sink.events) != 1 {
		t.Fatalf("expected one alert, got %d", len(sink.events))
	}
	event := sink.events[0]
	if event.EventType != outbox.EventInventoryAlert || event.AggregateType != outbox.AggregateInventory {
		t.Fatalf("unexpected event routing: %+v", event)
	}
	payload, ok := event.Data.(InventoryAlertEvent)
	if !ok {
		t.Fatalf("payload type %T", event.Data)
	}
	if payload.Stock != 5 || payload.State != enums.StockStateLow.String() {
		t.Fatalf("payload = %+v", payload)
	}

	// 5 -> 4 stays low, no second alert
	if err := svc.Decrement(ctx, 21, 1, "checkout"); err != nil {
		t.Fatalf("Decrement: %v", err)
	}
	if len(sink.events) != 1 {
		t.Fatalf("expected still one alert, got %d", len(sink.events))
	}

	// 4 -> 0 escalates to out of stock
	if err := svc.Decrement(ctx, 21, 4, "checkout"); err != nil {
		t.Fatalf("Decrement: %v", err)
	}
	if len(sink.events) != 2 {
		t.Fatalf("expected escalation alert, got %d events", len(sink.events))
	}
}
