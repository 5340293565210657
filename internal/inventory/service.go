package inventory

import (
	"context"
	"errors"
	"strconv"

	"gorm.io/gorm"

	"github.com/ecovivashop/ecoviva-backend/pkg/db/models"
	"github.com/ecovivashop/ecoviva-backend/pkg/enums"
	pkgerrors "github.com/ecovivashop/ecoviva-backend/pkg/errors"
	"github.com/ecovivashop/ecoviva-backend/pkg/logger"
	"github.com/ecovivashop/ecoviva-backend/pkg/metrics"
	"github.com/ecovivashop/ecoviva-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the inventory ledger. Availability checks are advisory;
// Decrement is the sole authority on whether stock can be taken.
type Service interface {
	CheckAvailability(ctx context.Context, productID uint, quantity int) (bool, error)
	Decrement(ctx context.Context, productID uint, quantity int, actor string) error
	Increment(ctx context.Context, productID uint, quantity int, actor string, reason enums.MovementReason) error
	SetStock(ctx context.Context, productID uint, value int, actor string) error
	UpdateThresholds(ctx context.Context, productID uint, update ThresholdUpdate, actor string) error
	GetRecord(ctx context.Context, productID uint) (*models.InventoryRecord, error)
	ListAlerts(ctx context.Context) ([]models.InventoryRecord, error)
	ListMovements(ctx context.Context, productID uint, limit int) ([]models.InventoryMovement, error)

	DecrementTx(ctx context.Context, tx *gorm.DB, productID uint, quantity int, actor string) error
	IncrementTx(ctx context.Context, tx *gorm.DB, productID uint, quantity int, actor string, reason enums.MovementReason) error
}

type service struct {
	repo    Repository
	tx      txRunner
	logg    *logger.Logger
	metrics *metrics.StoreMetrics
	alerts  alertSink
}

// alertSink publishes threshold-crossing events inside the caller's
// transaction. Nil disables alert emission.
type alertSink interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// InventoryAlertEvent is the outbox payload for a stock counter that
// crossed its minimum on a sale.
type InventoryAlertEvent struct {
	ProductID uint   `json:"product_id"`
	Stock     int    `json:"stock"`
	Minimum   int    `json:"minimum"`
	State     string `json:"state"`
}

// NewService wires the inventory ledger dependencies.
func NewService(repo Repository, tx txRunner, logg *logger.Logger, m *metrics.StoreMetrics, alerts alertSink) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "inventory repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	return &service{repo: repo, tx: tx, logg: logg, metrics: m, alerts: alerts}, nil
}

// CheckAvailability reports whether stock covers the quantity. A missing
// or inactive record is "not available", never an error.
func (s *service) CheckAvailability(ctx context.Context, productID uint, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	record, err := s.repo.FindByProductID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory record")
	}
	if !record.Active {
		return false, nil
	}
	return record.Stock >= quantity, nil
}

func (s *service) Decrement(ctx context.Context, productID uint, quantity int, actor string) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.DecrementTx(ctx, tx, productID, quantity, actor)
	})
}

// DecrementTx performs the check-and-decrement as a single guarded update
// inside the caller's transaction and appends the SALE movement row.
func (s *service) DecrementTx(ctx context.Context, tx *gorm.DB, productID uint, quantity int, actor string) error {
	if quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory decrement")
	}

	repo := s.repo.WithTx(tx)
	affected, err := repo.DecrementGuarded(ctx, productID, quantity, actor)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
	}
	if affected == 0 {
		record, findErr := repo.FindByProductID(ctx, productID)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "inventory record not found").
					WithDetails(map[string]any{"product_id": productID})
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "load inventory record")
		}
		s.metrics.IncStockConflict()
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
			WithDetails(map[string]any{
				"product_id": productID,
				"requested":  quantity,
				"available":  record.Stock,
			})
	}

	record, err := s.appendMovement(ctx, repo, productID, -quantity, enums.MovementReasonSale, actor)
	if err != nil {
		return err
	}
	return s.emitAlert(ctx, tx, record, quantity)
}

func (s *service) Increment(ctx context.Context, productID uint, quantity int, actor string, reason enums.MovementReason) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.IncrementTx(ctx, tx, productID, quantity, actor, reason)
	})
}

// IncrementTx adds quantity back. No upper bound is enforced, the maximum
// threshold is reporting-only.
func (s *service) IncrementTx(ctx context.Context, tx *gorm.DB, productID uint, quantity int, actor string, reason enums.MovementReason) error {
	if quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if !reason.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid movement reason")
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory increment")
	}

	repo := s.repo.WithTx(tx)
	affected, err := repo.IncrementGuarded(ctx, productID, quantity, actor)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment stock")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "inventory record not found").
			WithDetails(map[string]any{"product_id": productID})
	}

	_, err = s.appendMovement(ctx, repo, productID, quantity, reason, actor)
	return err
}

// SetStock overwrites the counter after a physical recount.
func (s *service) SetStock(ctx context.Context, productID uint, value int, actor string) error {
	if value < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "stock cannot be negative")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, err := repo.FindByProductID(ctx, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "inventory record not found").
					WithDetails(map[string]any{"product_id": productID})
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory record")
		}

		affected, err := repo.SetStockGuarded(ctx, productID, value, actor)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "set stock")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "inventory record not found").
				WithDetails(map[string]any{"product_id": productID})
		}

		delta := value - record.Stock
		if delta == 0 {
			return nil
		}
		_, err = s.appendMovement(ctx, repo, productID, delta, enums.MovementReasonManualAdjustment, actor)
		return err
	})
}

// ThresholdUpdate carries the optional classification and location
// fields. Nil means leave unchanged; thresholds never touch the stock
// counter itself.
type ThresholdUpdate struct {
	Minimum  *int    `json:"minimum"`
	Maximum  *int    `json:"maximum"`
	Location *string `json:"location"`
}

func (s *service) UpdateThresholds(ctx context.Context, productID uint, update ThresholdUpdate, actor string) error {
	if update.Minimum == nil && update.Maximum == nil && update.Location == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "no threshold fields to update")
	}
	if update.Minimum != nil && *update.Minimum < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "minimum cannot be negative")
	}
	if update.Maximum != nil && update.Minimum != nil && *update.Maximum < *update.Minimum {
		return pkgerrors.New(pkgerrors.CodeValidation, "maximum cannot be below minimum")
	}

	updates := map[string]any{"updated_by": actor}
	if update.Minimum != nil {
		updates["minimum"] = *update.Minimum
	}
	if update.Maximum != nil {
		updates["maximum"] = *update.Maximum
	}
	if update.Location != nil {
		updates["location"] = *update.Location
	}

	affected, err := s.repo.UpdateThresholds(ctx, productID, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update thresholds")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "inventory record not found").
			WithDetails(map[string]any{"product_id": productID})
	}
	return nil
}

func (s *service) GetRecord(ctx context.Context, productID uint) (*models.InventoryRecord, error) {
	record, err := s.repo.FindByProductID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory record not found").
				WithDetails(map[string]any{"product_id": productID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory record")
	}
	return record, nil
}

func (s *service) ListAlerts(ctx context.Context) ([]models.InventoryRecord, error) {
	rows, err := s.repo.ListAlerts(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock alerts")
	}
	return rows, nil
}

func (s *service) ListMovements(ctx context.Context, productID uint, limit int) ([]models.InventoryMovement, error) {
	rows, err := s.repo.ListMovements(ctx, productID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list inventory movements")
	}
	return rows, nil
}

func (s *service) appendMovement(ctx context.Context, repo Repository, productID uint, delta int, reason enums.MovementReason, actor string) (*models.InventoryRecord, error) {
	record, err := repo.FindByProductID(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory record for movement")
	}
	movement := &models.InventoryMovement{
		InventoryRecordID: record.ID,
		ProductID:         productID,
		Delta:             delta,
		Reason:            reason,
		Actor:             actor,
	}
	if err := repo.AppendMovement(ctx, movement); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append inventory movement")
	}
	return record, nil
}

// emitAlert publishes an inventory.alert event when a sale moved the
// record out of its previous, healthier state. Repeated sales inside the
// same state stay quiet.
func (s *service) emitAlert(ctx context.Context, tx *gorm.DB, record *models.InventoryRecord, taken int) error {
	if s.alerts == nil {
		return nil
	}
	previous := enums.DeriveStockState(record.Stock+taken, record.Minimum)
	current := record.State()
	if current == previous || current == enums.StockStateNormal {
		return nil
	}
	return s.alerts.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     outbox.EventInventoryAlert,
		AggregateType: outbox.AggregateInventory,
		AggregateID:   strconv.FormatUint(uint64(record.ProductID), 10),
		Version:       1,
		Data: InventoryAlertEvent{
			ProductID: record.ProductID,
			Stock:     record.Stock,
			Minimum:   record.Minimum,
			State:     current.String(),
		},
	})
}
