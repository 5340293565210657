package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ecovivashop/ecoviva-backend/pkg/enums"
)

// Order is the customer purchase driven through the lifecycle state machine.
// Monetary fields are recomputed from line items, never edited directly.
type Order struct {
	ID                  uint                `gorm:"column:id;primaryKey;autoIncrement"`
	OrderNumber         string              `gorm:"column:order_number;not null;uniqueIndex"`
	CustomerID          uint                `gorm:"column:customer_id;not null"`
	ShippingAddress     string              `gorm:"column:shipping_address;not null"`
	ContactPhone        string              `gorm:"column:contact_phone;not null"`
	PaymentMethod       enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	Status              enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending'"`
	Subtotal            decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Discount            decimal.Decimal     `gorm:"column:discount;type:numeric(12,2);not null"`
	ShippingCost        decimal.Decimal     `gorm:"column:shipping_cost;type:numeric(12,2);not null"`
	Tax                 decimal.Decimal     `gorm:"column:tax;type:numeric(12,2);not null"`
	Total               decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	Carrier             *string             `gorm:"column:carrier"`
	TrackingNumber      *string             `gorm:"column:tracking_number"`
	CancelReason        *string             `gorm:"column:cancel_reason"`
	PlacedAt            time.Time           `gorm:"column:placed_at;not null"`
	EstimatedDeliveryAt *time.Time          `gorm:"column:estimated_delivery_at"`
	DeliveredAt         *time.Time          `gorm:"column:delivered_at"`
	CancelledAt         *time.Time          `gorm:"column:cancelled_at"`
	Items               []OrderLineItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
