package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ecovivashop/ecoviva-backend/pkg/enums"
)

// LineRequest is one product entry in a checkout request.
type LineRequest struct {
	ProductID    uint            `json:"product_id" validate:"required,gt=0"`
	Quantity     int             `json:"quantity" validate:"required,gt=0"`
	UnitDiscount decimal.Decimal `json:"unit_discount"`
}

// CreateRequest is the checkout payload.
type CreateRequest struct {
	CustomerID      uint                `json:"customer_id" validate:"required,gt=0"`
	ShippingAddress string              `json:"shipping_address" validate:"required"`
	ContactPhone    string              `json:"contact_phone" validate:"required"`
	PaymentMethod   enums.PaymentMethod `json:"payment_method" validate:"required"`
	Items           []LineRequest       `json:"items" validate:"required,min=1,dive"`
}

// ShipRequest carries the carrier handoff details.
type ShipRequest struct {
	Carrier        string `json:"carrier" validate:"required"`
	TrackingNumber string `json:"tracking_number" validate:"required"`
}

// LineView mirrors a persisted order line.
type LineView struct {
	ProductID    uint            `json:"product_id"`
	ProductName  string          `json:"product_name"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	UnitDiscount decimal.Decimal `json:"unit_discount"`
	LineTotal    decimal.Decimal `json:"line_total"`
}

// View is the order representation returned to callers.
type View struct {
	ID                  uint                `json:"id"`
	OrderNumber         string              `json:"order_number"`
	CustomerID          uint                `json:"customer_id"`
	Status              enums.OrderStatus   `json:"status"`
	PaymentMethod       enums.PaymentMethod `json:"payment_method"`
	ShippingAddress     string              `json:"shipping_address"`
	ContactPhone        string              `json:"contact_phone"`
	Subtotal            decimal.Decimal     `json:"subtotal"`
	Discount            decimal.Decimal     `json:"discount"`
	ShippingCost        decimal.Decimal     `json:"shipping_cost"`
	Tax                 decimal.Decimal     `json:"tax"`
	Total               decimal.Decimal     `json:"total"`
	Carrier             *string             `json:"carrier,omitempty"`
	TrackingNumber      *string             `json:"tracking_number,omitempty"`
	CancelReason        *string             `json:"cancel_reason,omitempty"`
	PlacedAt            time.Time           `json:"placed_at"`
	EstimatedDeliveryAt *time.Time          `json:"estimated_delivery_at,omitempty"`
	DeliveredAt         *time.Time          `json:"delivered_at,omitempty"`
	CancelledAt         *time.Time          `json:"cancelled_at,omitempty"`
	Items               []LineView          `json:"items"`
}
