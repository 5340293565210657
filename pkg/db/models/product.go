package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog entry orders snapshot their prices from.
type Product struct {
	ID          uint            `gorm:"column:id;primaryKey;autoIncrement"`
	Name        string          `gorm:"column:name;not null"`
	Description *string         `gorm:"column:description"`
	SKU         string          `gorm:"column:sku;not null;uniqueIndex"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Active      bool            `gorm:"column:active;not null;default:true"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
