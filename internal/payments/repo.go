package payments

import (
	"context"

	"gorm.io/gorm"

	"github.com/ecovivashop/ecoviva-backend/pkg/db/models"
	"github.com/ecovivashop/ecoviva-backend/pkg/enums"
)

// Repository owns payment_transactions rows. Status transitions go
// through the guarded update so a concurrent confirm cannot double-settle.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, transaction *models.PaymentTransaction) (*models.PaymentTransaction, error)
	FindByID(ctx context.Context, id uint) (*models.PaymentTransaction, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) ([]models.PaymentTransaction, error)
	CountByOrderNumber(ctx context.Context, orderNumber string) (int64, error)
	TransitionStatus(ctx context.Context, id uint, from, to enums.TransactionStatus, updates map[string]any) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, transaction *models.PaymentTransaction) (*models.PaymentTransaction, error) {
	if err := r.db.WithContext(ctx).Create(transaction).Error; err != nil {
		return nil, err
	}
	return transaction, nil
}

func (r *repository) FindByID(ctx context.Context, id uint) (*models.PaymentTransaction, error) {
	var transaction models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&transaction).Error
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

func (r *repository) FindByOrderNumber(ctx context.Context, orderNumber string) ([]models.PaymentTransaction, error) {
	var rows []models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("order_number = ?", orderNumber).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) CountByOrderNumber(ctx context.Context, orderNumber string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("order_number = ?", orderNumber).
		Count(&count).Error
	return count, err
}

// TransitionStatus flips status only when the row is still in the expected
// state. Returns affected rows so callers can detect a lost race.
func (r *repository) TransitionStatus(ctx context.Context, id uint, from, to enums.TransactionStatus, updates map[string]any) (int64, error) {
	values := map[string]any{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	return res.RowsAffected, res.Error
}
