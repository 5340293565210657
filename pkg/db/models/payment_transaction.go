package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ecovivashop/ecoviva-backend/pkg/enums"
)

// PaymentTransaction records one payment attempt. A retried payment
// creates a fresh row, existing rows are never reused. The order link
// is by order number, not a foreign key, so attempts survive order
// deletion.
type PaymentTransaction struct {
	ID                uint                    `gorm:"column:id;primaryKey;autoIncrement"`
	OrderNumber       string                  `gorm:"column:order_number;not null;index"`
	SubscriptionID    *uint                   `gorm:"column:subscription_id"`
	Amount            decimal.Decimal         `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency          string                  `gorm:"column:currency;not null;default:'PEN'"`
	Method            enums.PaymentMethod     `gorm:"column:method;type:text;not null"`
	Gateway           enums.Gateway           `gorm:"column:gateway;type:text;not null"`
	Status            enums.TransactionStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	AuthorizationCode *string                 `gorm:"column:authorization_code"`
	ExternalReference *string                 `gorm:"column:external_reference"`
	FailureReason     *string                 `gorm:"column:failure_reason"`
	CustomerName      string                  `gorm:"column:customer_name;not null"`
	CustomerEmail     string                  `gorm:"column:customer_email;not null"`
	CustomerPhone     string                  `gorm:"column:customer_phone;not null;default:''"`
	CustomerDocument  string                  `gorm:"column:customer_document;not null;default:''"`
	RetryCount        int                     `gorm:"column:retry_count;not null;default:0"`
	AuthorizedAt      *time.Time              `gorm:"column:authorized_at"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
