package models

import (
	"time"

	"github.com/ecovivashop/ecoviva-backend/pkg/enums"
)

// InventoryRecord tracks the stock counter for one product. Stock is
// mutated only through ledger operations and never goes below zero.
type InventoryRecord struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	ProductID uint      `gorm:"column:product_id;not null;uniqueIndex"`
	Stock     int       `gorm:"column:stock;not null;default:0"`
	Minimum   int       `gorm:"column:minimum;not null;default:5"`
	Maximum   *int      `gorm:"column:maximum"`
	Location  *string   `gorm:"column:location"`
	Active    bool      `gorm:"column:active;not null;default:true"`
	UpdatedBy string    `gorm:"column:updated_by;not null;default:''"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// State classifies the current stock against the configured minimum.
func (r InventoryRecord) State() enums.StockState {
	return enums.DeriveStockState(r.Stock, r.Minimum)
}
