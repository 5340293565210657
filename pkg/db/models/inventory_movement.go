package models

import (
	"time"

	"github.com/ecovivashop/ecoviva-backend/pkg/enums"
)

// InventoryMovement is the append-only history row written by every
// stock mutation. Rows are never updated or deleted.
type InventoryMovement struct {
	ID                uint                 `gorm:"column:id;primaryKey;autoIncrement"`
	InventoryRecordID uint                 `gorm:"column:inventory_record_id;not null;index"`
	ProductID         uint                 `gorm:"column:product_id;not null;index"`
	Delta             int                  `gorm:"column:delta;not null"`
	Reason            enums.MovementReason `gorm:"column:reason;type:text;not null"`
	Actor             string               `gorm:"column:actor;not null"`
	CreatedAt         time.Time            `gorm:"column:created_at;autoCreateTime"`
}
