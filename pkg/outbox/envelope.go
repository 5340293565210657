package outbox

import (
	"encoding/json"
	"time"
)

// Event types emitted by the order and payment services.
const (
	EventOrderCreated     = "order.created"
	EventOrderConfirmed   = "order.confirmed"
	EventOrderShipped     = "order.shipped"
	EventOrderDelivered   = "order.delivered"
	EventOrderCancelled   = "order.cancelled"
	EventPaymentCompleted = "payment.completed"
	EventPaymentRejected  = "payment.rejected"
	EventInventoryAlert   = "inventory.alert"
)

// Aggregate types stored alongside events.
const (
	AggregateOrder     = "order"
	AggregatePayment   = "payment"
	AggregateInventory = "inventory"
)

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      string          `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
