package orders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ecovivashop/ecoviva-backend/pkg/db/models"
	"github.com/ecovivashop/ecoviva-backend/pkg/enums"
)

func setupOrdersRepoDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:orders_repo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.Customer{}, &models.Order{}, &models.OrderLineItem{}))
	return db
}

func seedOrder(t *testing.T, db *gorm.DB, customerID uint, status enums.OrderStatus, placedAt time.Time) *models.Order {
	t.Helper()

	order := &models.Order{
		OrderNumber:     fmt.Sprintf("EM%d", placedAt.UnixMilli()),
		CustomerID:      customerID,
		ShippingAddress: "Av. Arequipa 1200, Lima",
		ContactPhone:    "+51 987 654 321",
		PaymentMethod:   enums.PaymentMethodCreditCard,
		Status:          status,
		Subtotal:        decimal.NewFromFloat(100),
		Discount:        decimal.Zero,
		ShippingCost:    decimal.Zero,
		Tax:             decimal.NewFromFloat(19),
		Total:           decimal.NewFromFloat(119),
		PlacedAt:        placedAt,
		Items: []models.OrderLineItem{
			{
				ProductID:    1,
				ProductName:  "Bamboo Toothbrush",
				UnitPrice:    decimal.NewFromFloat(50),
				Quantity:     2,
				UnitDiscount: decimal.Zero,
				LineTotal:    decimal.NewFromFloat(100),
			},
		},
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func TestTransitionStatusGuardsSourceStates(t *testing.T) {
	db := setupOrdersRepoDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedOrder(t, db, 1, enums.OrderStatusPending, time.Now())

	affected, err := repo.TransitionStatus(ctx, order.ID,
		[]enums.OrderStatus{enums.OrderStatusPending}, enums.OrderStatusConfirmed, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	// same transition again must miss: the row is no longer pending
	affected, err = repo.TransitionStatus(ctx, order.ID,
		[]enums.OrderStatus{enums.OrderStatusPending}, enums.OrderStatusConfirmed, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)

	reloaded, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, reloaded.Status)
}

func TestTransitionStatusAppliesExtraUpdates(t *testing.T) {
	db := setupOrdersRepoDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedOrder(t, db, 1, enums.OrderStatusPreparing, time.Now())

	affected, err := repo.TransitionStatus(ctx, order.ID,
		[]enums.OrderStatus{enums.OrderStatusPreparing}, enums.OrderStatusShipped,
		map[string]any{"carrier": "Olva Courier", "tracking_number": "OLV-12345"})
	require.NoError(t, err)
	require.Equal(t, int64(1), affected)

	reloaded, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.Carrier)
	require.NotNil(t, reloaded.TrackingNumber)
	assert.Equal(t, "Olva Courier", *reloaded.Carrier)
	assert.Equal(t, "OLV-12345", *reloaded.TrackingNumber)
}

func TestFindByIDPreloadsItems(t *testing.T) {
	db := setupOrdersRepoDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedOrder(t, db, 1, enums.OrderStatusPending, time.Now())

	found, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, found.Items, 1)
	assert.Equal(t, "Bamboo Toothbrush", found.Items[0].ProductName)
	assert.Equal(t, 2, found.Items[0].Quantity)
}

func TestListByCustomerOrdersNewestFirst(t *testing.T) {
	db := setupOrdersRepoDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	older := seedOrder(t, db, 7, enums.OrderStatusDelivered, base)
	newer := seedOrder(t, db, 7, enums.OrderStatusPending, base.Add(30*time.Minute))
	seedOrder(t, db, 8, enums.OrderStatusPending, base.Add(10*time.Minute))

	rows, err := repo.ListByCustomer(ctx, 7, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, newer.ID, rows[0].ID)
	assert.Equal(t, older.ID, rows[1].ID)

	limited, err := repo.ListByCustomer(ctx, 7, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, newer.ID, limited[0].ID)
}
