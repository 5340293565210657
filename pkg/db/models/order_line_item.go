package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderLineItem captures the immutable snapshot of one product within an order.
type OrderLineItem struct {
	ID           uint            `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID      uint            `gorm:"column:order_id;not null"`
	ProductID    uint            `gorm:"column:product_id;not null"`
	ProductName  string          `gorm:"column:product_name;not null"`
	Quantity     int             `gorm:"column:quantity;not null"`
	UnitPrice    decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	UnitDiscount decimal.Decimal `gorm:"column:unit_discount;type:numeric(12,2);not null"`
	LineTotal    decimal.Decimal `gorm:"column:line_total;type:numeric(12,2);not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}
