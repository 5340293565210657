// Package notifications delivers customer-facing notices over Pub/Sub.
// Delivery is best effort; order and payment state never depend on it.
package notifications

import (
	"context"
	"encoding/json"
	"time"

	"cloud.google.com/go/pubsub/v2"

	"github.com/ecovivashop/ecoviva-backend/pkg/db/models"
	"github.com/ecovivashop/ecoviva-backend/pkg/enums"
	pkgerrors "github.com/ecovivashop/ecoviva-backend/pkg/errors"
	"github.com/ecovivashop/ecoviva-backend/pkg/logger"
)

const publishTimeout = 10 * time.Second

// publisher matches the slice of the Pub/Sub topic publisher we use.
type publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
}

// OrderConfirmationNotice is the message sent right after checkout.
type OrderConfirmationNotice struct {
	Kind          string    `json:"kind"`
	OrderNumber   string    `json:"order_number"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	Total         string    `json:"total"`
	EstimatedAt   time.Time `json:"estimated_delivery_at,omitempty"`
	SentAt        time.Time `json:"sent_at"`
}

// StateChangeNotice tells the customer the order moved.
type StateChangeNotice struct {
	Kind           string `json:"kind"`
	OrderNumber    string `json:"order_number"`
	From           string `json:"from"`
	To             string `json:"to"`
	Carrier        string `json:"carrier,omitempty"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	SentAt         time.Time `json:"sent_at"`
}

// PubSubNotifier publishes notices on the notification topic.
type PubSubNotifier struct {
	topic publisher
	logg  *logger.Logger
	now   func() time.Time
}

func NewPubSubNotifier(topic publisher, logg *logger.Logger) (*PubSubNotifier, error) {
	if topic == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notification topic required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &PubSubNotifier{topic: topic, logg: logg, now: time.Now}, nil
}

func (n *PubSubNotifier) SendOrderConfirmation(ctx context.Context, order *models.Order, customer *models.Customer) error {
	notice := OrderConfirmationNotice{
		Kind:          "order_confirmation",
		OrderNumber:   order.OrderNumber,
		CustomerName:  customer.Name,
		CustomerEmail: customer.Email,
		Total:         order.Total.StringFixed(2),
		SentAt:        n.now(),
	}
	if order.EstimatedDeliveryAt != nil {
		notice.EstimatedAt = *order.EstimatedDeliveryAt
	}
	return n.publish(ctx, order.OrderNumber, notice.Kind, notice)
}

func (n *PubSubNotifier) SendStateChangeNotice(ctx context.Context, order *models.Order, previous enums.OrderStatus) error {
	notice := StateChangeNotice{
		Kind:        "order_state_change",
		OrderNumber: order.OrderNumber,
		From:        previous.String(),
		To:          order.Status.String(),
		SentAt:      n.now(),
	}
	if order.Carrier != nil {
		notice.Carrier = *order.Carrier
	}
	if order.TrackingNumber != nil {
		notice.TrackingNumber = *order.TrackingNumber
	}
	return n.publish(ctx, order.OrderNumber, notice.Kind, notice)
}

func (n *PubSubNotifier) publish(ctx context.Context, orderNumber, kind string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode notice")
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	result := n.topic.Publish(publishCtx, &pubsub.Message{
		Data: body,
		Attributes: map[string]string{
			"kind":         kind,
			"order_number": orderNumber,
		},
	})
	if _, err := result.Get(publishCtx); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publish notice")
	}
	n.logg.Info(n.logg.WithOrderNumber(ctx, orderNumber), "notice published")
	return nil
}

// LogNotifier is the dev fallback when Pub/Sub is not configured. It
// writes the notice to the log and reports success.
type LogNotifier struct {
	logg *logger.Logger
}

func NewLogNotifier(logg *logger.Logger) *LogNotifier {
	return &LogNotifier{logg: logg}
}

func (n *LogNotifier) SendOrderConfirmation(ctx context.Context, order *models.Order, customer *models.Customer) error {
	fields := map[string]any{
		"order_number":   order.OrderNumber,
		"customer_email": customer.Email,
		"total":          order.Total.StringFixed(2),
	}
	n.logg.Info(n.logg.WithFields(ctx, fields), "order confirmation notice")
	return nil
}

func (n *LogNotifier) SendStateChangeNotice(ctx context.Context, order *models.Order, previous enums.OrderStatus) error {
	fields := map[string]any{
		"order_number": order.OrderNumber,
		"from":         previous.String(),
		"to":           order.Status.String(),
	}
	n.logg.Info(n.logg.WithFields(ctx, fields), "order state change notice")
	return nil
}
