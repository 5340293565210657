package catalog

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ecovivashop/ecoviva-backend/internal/inventory"
	"github.com/ecovivashop/ecoviva-backend/pkg/config"
	"github.com/ecovivashop/ecoviva-backend/pkg/db/models"
	pkgerrors "github.com/ecovivashop/ecoviva-backend/pkg/errors"
	"github.com/ecovivashop/ecoviva-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// NewProduct is the provisioning input. A product is never created
// without its inventory record, so the ledger can mutate it from the
// first sale.
type NewProduct struct {
	Name         string          `json:"name" validate:"required"`
	Description  *string         `json:"description"`
	SKU          string          `json:"sku" validate:"required"`
	Price        decimal.Decimal `json:"price" validate:"required"`
	InitialStock int             `json:"initial_stock" validate:"gte=0"`
	Minimum      *int            `json:"minimum"`
	Maximum      *int            `json:"maximum"`
	Location     *string         `json:"location"`
}

// Provisioner creates products together with their inventory records.
type Provisioner struct {
	repo     Repository
	records  inventory.Repository
	tx       txRunner
	logg     *logger.Logger
	defaults config.InventoryConfig
}

func NewProvisioner(repo Repository, records inventory.Repository, tx txRunner, logg *logger.Logger, cfg config.InventoryConfig) (*Provisioner, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "catalog repository required")
	}
	if records == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "inventory repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &Provisioner{repo: repo, records: records, tx: tx, logg: logg, defaults: cfg}, nil
}

// CreateProduct persists the product and its inventory record in one
// transaction.
func (p *Provisioner) CreateProduct(ctx context.Context, input NewProduct) (*Product, error) {
	if input.Name == "" || input.SKU == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product name and sku required")
	}
	if input.Price.IsNegative() || input.Price.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be positive")
	}
	if input.InitialStock < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "initial stock cannot be negative")
	}
	if input.Minimum != nil && *input.Minimum < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "minimum cannot be negative")
	}

	minimum := p.defaults.DefaultMinimum
	if input.Minimum != nil {
		minimum = *input.Minimum
	}

	product := &models.Product{
		Name:        input.Name,
		Description: input.Description,
		SKU:         input.SKU,
		Price:       input.Price,
		Active:      true,
	}

	err := p.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := p.repo.WithTx(tx).CreateProduct(ctx, product)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "create product")
		}
		record := &models.InventoryRecord{
			ProductID: created.ID,
			Stock:     input.InitialStock,
			Minimum:   minimum,
			Maximum:   input.Maximum,
			Location:  input.Location,
			Active:    true,
			UpdatedBy: "provision:" + input.SKU,
		}
		if _, err := p.records.WithTx(tx).CreateRecord(ctx, record); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create inventory record")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = p.logg.WithProductID(ctx, product.ID)
	p.logg.Info(ctx, "product provisioned")
	return &Product{
		ID:     product.ID,
		Name:   product.Name,
		Price:  product.Price,
		Active: product.Active,
	}, nil
}
