package inventory

import (
	"context"

	"gorm.io/gorm"

	"github.com/ecovivashop/ecoviva-backend/pkg/db/models"
)

// Repository owns inventory_records and inventory_movements rows. All
// counter mutations go through the guarded update helpers so a stale
// read can never produce a lost update or a negative stock.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByProductID(ctx context.Context, productID uint) (*models.InventoryRecord, error)
	CreateRecord(ctx context.Context, record *models.InventoryRecord) (*models.InventoryRecord, error)
	DecrementGuarded(ctx context.Context, productID uint, quantity int, actor string) (int64, error)
	IncrementGuarded(ctx context.Context, productID uint, quantity int, actor string) (int64, error)
	SetStockGuarded(ctx context.Context, productID uint, value int, actor string) (int64, error)
	UpdateThresholds(ctx context.Context, productID uint, updates map[string]any) (int64, error)
	AppendMovement(ctx context.Context, movement *models.InventoryMovement) error
	ListMovements(ctx context.Context, productID uint, limit int) ([]models.InventoryMovement, error)
	ListAlerts(ctx context.Context) ([]models.InventoryRecord, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByProductID(ctx context.Context, productID uint) (*models.InventoryRecord, error) {
	var record models.InventoryRecord
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) CreateRecord(ctx context.Context, record *models.InventoryRecord) (*models.InventoryRecord, error) {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

// DecrementGuarded subtracts quantity in one statement. The stock >= quantity
// predicate makes the check and the write a single atomic unit, so two
// concurrent orders cannot both take the last units. Returns affected rows.
func (r *repository) DecrementGuarded(ctx context.Context, productID uint, quantity int, actor string) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE inventory_records
		SET stock = stock - ?,
			updated_by = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND active AND stock >= ?
	`, quantity, actor, productID, quantity)
	return res.RowsAffected, res.Error
}

func (r *repository) IncrementGuarded(ctx context.Context, productID uint, quantity int, actor string) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE inventory_records
		SET stock = stock + ?,
			updated_by = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ?
	`, quantity, actor, productID)
	return res.RowsAffected, res.Error
}

func (r *repository) SetStockGuarded(ctx context.Context, productID uint, value int, actor string) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE inventory_records
		SET stock = ?,
			updated_by = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ?
	`, value, actor, productID)
	return res.RowsAffected, res.Error
}

func (r *repository) UpdateThresholds(ctx context.Context, productID uint, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.InventoryRecord{}).
		Where("product_id = ?", productID).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) AppendMovement(ctx context.Context, movement *models.InventoryMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

func (r *repository) ListMovements(ctx context.Context, productID uint, limit int) ([]models.InventoryMovement, error) {
	var rows []models.InventoryMovement
	query := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&rows).Error
	return rows, err
}

// ListAlerts returns records at or below their minimum, most urgent first.
// NULLIF avoids a division error when a record has minimum 0.
func (r *repository) ListAlerts(ctx context.Context) ([]models.InventoryRecord, error) {
	var rows []models.InventoryRecord
	err := r.db.WithContext(ctx).
		Where("active AND stock <= minimum").
		Order("(CAST(stock AS FLOAT) / NULLIF(minimum, 0)) ASC").
		Order("product_id ASC").
		Find(&rows).Error
	return rows, err
}
