package orders

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ecovivashop/ecoviva-backend/internal/catalog"
	"github.com/ecovivashop/ecoviva-backend/pkg/config"
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

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// stockLedger is the slice of the inventory service the order lifecycle
// needs: transactional takes during checkout and standalone restores
// during cancellation.
type stockLedger interface {
	CheckAvailability(ctx context.Context, productID uint, quantity int) (bool, error)
	DecrementTx(ctx context.Context, tx *gorm.DB, productID uint, quantity int, actor string) error
	Increment(ctx context.Context, productID uint, quantity int, actor string, reason enums.MovementReason) error
}

// Notifier delivers customer-facing notices. Failures are logged, never
// propagated; notification delivery must not affect order state.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, order *models.Order, customer *models.Customer) error
	SendStateChangeNotice(ctx context.Context, order *models.Order, previous enums.OrderStatus) error
}

type compensator interface {
	EnqueueRestore(ctx context.Context, task CompensationTask) error
}

// OrderCreatedEvent is the payload published on checkout.
type OrderCreatedEvent struct {
	OrderID       uint                `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	CustomerID    uint                `json:"customer_id"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Total         decimal.Decimal     `json:"total"`
	ItemCount     int                 `json:"item_count"`
}

// OrderStateChangedEvent is published on every lifecycle transition.
type OrderStateChangedEvent struct {
	OrderID     uint              `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
	Reason      string            `json:"reason,omitempty"`
}

// Service drives the order lifecycle.
type Service interface {
	CreateOrder(ctx context.Context, req CreateRequest) (*View, error)
	GetOrder(ctx context.Context, id uint) (*View, error)
	GetByOrderNumber(ctx context.Context, orderNumber string) (*View, error)
	ListByCustomer(ctx context.Context, customerID uint, limit int) ([]View, error)
	ListByStatus(ctx context.Context, status enums.OrderStatus, limit int) ([]View, error)
	Stats(ctx context.Context) (*StatusStats, error)
	Confirm(ctx context.Context, id uint) (*View, error)
	StartPreparing(ctx context.Context, id uint) (*View, error)
	Ship(ctx context.Context, id uint, req ShipRequest) (*View, error)
	Deliver(ctx context.Context, id uint) (*View, error)
	Cancel(ctx context.Context, id uint, reason string) (*View, error)
	ChangeState(ctx context.Context, id uint, target enums.OrderStatus, reason string) (*View, error)
}

type service struct {
	repo     Repository
	products catalog.Repository
	stock    stockLedger
	tx       txRunner
	outbox   outboxPublisher
	notifier Notifier
	comp     compensator
	logg     *logger.Logger
	metrics  *metrics.StoreMetrics
	cfg      config.OrdersConfig
	now      func() time.Time
}

// NewService wires the order lifecycle dependencies. Notifier and
// compensator may be nil; both degrade to log-only behavior.
func NewService(repo Repository, products catalog.Repository, stock stockLedger, tx txRunner, ob outboxPublisher, notifier Notifier, comp compensator, logg *logger.Logger, m *metrics.StoreMetrics, cfg config.OrdersConfig) (Service, error) {
	if repo == nil || products == nil || stock == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orders repository, catalog and stock ledger required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if ob == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox publisher required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{
		repo:     repo,
		products: products,
		stock:    stock,
		tx:       tx,
		outbox:   ob,
		notifier: notifier,
		comp:     comp,
		logg:     logg,
		metrics:  m,
		cfg:      cfg,
		now:      time.Now,
	}, nil
}

// CreateOrder validates the request, takes stock for every line and
// persists the order atomically. Any line failing its stock take aborts
// the whole checkout; no order row and no movements survive.
func (s *service) CreateOrder(ctx context.Context, req CreateRequest) (*View, error) {
	if err := s.validateCreate(req); err != nil {
		return nil, err
	}

	customer, err := s.repo.FindCustomer(ctx, req.CustomerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found").
				WithDetails(map[string]any{"customer_id": req.CustomerID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}

	// advisory pre-flight so obviously doomed checkouts fail before any
	// write; the transactional take below remains the authority
	for _, line := range req.Items {
		available, err := s.stock.CheckAvailability(ctx, line.ProductID, line.Quantity)
		if err != nil {
			return nil, err
		}
		if !available {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock for product").
				WithDetails(map[string]any{
					"product_id": line.ProductID,
					"requested":  line.Quantity,
				})
		}
	}

	placedAt := s.now()
	orderNumber := "EM" + strconv.FormatInt(placedAt.UnixMilli(), 10)
	estimated := placedAt.Add(s.cfg.DeliveryLeadTime)
	actor := "order:" + orderNumber
	ctx = s.logg.WithOrderNumber(ctx, orderNumber)

	var created *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		productRepo := s.products.WithTx(tx)

		items := make([]models.OrderLineItem, 0, len(req.Items))
		subtotal := decimal.Zero
		discount := decimal.Zero
		for _, line := range req.Items {
			product, err := productRepo.FindProductByID(ctx, line.ProductID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
						WithDetails(map[string]any{"product_id": line.ProductID})
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
			}
			if !product.Active {
				return pkgerrors.New(pkgerrors.CodeValidation, "product is not for sale").
					WithDetails(map[string]any{"product_id": line.ProductID})
			}

			if err := s.stock.DecrementTx(ctx, tx, line.ProductID, line.Quantity, actor); err != nil {
				return err
			}

			qty := decimal.NewFromInt(int64(line.Quantity))
			lineGross := product.Price.Mul(qty)
			lineDiscount := line.UnitDiscount.Mul(qty)
			items = append(items, models.OrderLineItem{
				ProductID:    product.ID,
				ProductName:  product.Name,
				Quantity:     line.Quantity,
				UnitPrice:    product.Price,
				UnitDiscount: line.UnitDiscount,
				LineTotal:    lineGross.Sub(lineDiscount).Round(2),
			})
			subtotal = subtotal.Add(lineGross)
			discount = discount.Add(lineDiscount)
		}

		subtotal = subtotal.Round(2)
		discount = discount.Round(2)
		shipping := decimal.NewFromFloat(s.cfg.ShippingFlatFee).Round(2)
		taxable := subtotal.Sub(discount)
		tax := taxable.Mul(decimal.NewFromFloat(s.cfg.TaxRate)).Round(2)
		total := taxable.Add(shipping).Add(tax).Round(2)

		order := &models.Order{
			OrderNumber:         orderNumber,
			CustomerID:          customer.ID,
			ShippingAddress:     req.ShippingAddress,
			ContactPhone:        req.ContactPhone,
			PaymentMethod:       req.PaymentMethod,
			Status:              enums.OrderStatusPending,
			Subtotal:            subtotal,
			Discount:            discount,
			ShippingCost:        shipping,
			Tax:                 tax,
			Total:               total,
			PlacedAt:            placedAt,
			EstimatedDeliveryAt: &estimated,
			Items:               items,
		}
		if _, err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist order")
		}
		created = order

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     outbox.EventOrderCreated,
			AggregateType: outbox.AggregateOrder,
			AggregateID:   orderNumber,
			Version:       1,
			Data: OrderCreatedEvent{
				OrderID:       order.ID,
				OrderNumber:   orderNumber,
				CustomerID:    customer.ID,
				PaymentMethod: req.PaymentMethod,
				Total:         total,
				ItemCount:     len(items),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncOrderCreated(req.PaymentMethod.String())
	s.logg.Info(ctx, "order placed")

	if s.notifier != nil {
		if err := s.notifier.SendOrderConfirmation(ctx, created, customer); err != nil {
			s.logg.Warn(ctx, "order confirmation notice failed: "+err.Error())
		}
	}
	return toView(created), nil
}

func (s *service) GetOrder(ctx context.Context, id uint) (*View, error) {
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return toView(order), nil
}

func (s *service) GetByOrderNumber(ctx context.Context, orderNumber string) (*View, error) {
	if orderNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}
	order, err := s.repo.FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found").
				WithDetails(map[string]any{"order_number": orderNumber})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return toView(order), nil
}

func (s *service) ListByCustomer(ctx context.Context, customerID uint, limit int) ([]View, error) {
	if customerID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	rows, err := s.repo.ListByCustomer(ctx, customerID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	views := make([]View, 0, len(rows))
	for i := range rows {
		views = append(views, *toView(&rows[i]))
	}
	return views, nil
}

func (s *service) ListByStatus(ctx context.Context, status enums.OrderStatus, limit int) ([]View, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status").
			WithDetails(map[string]any{"status": string(status)})
	}
	rows, err := s.repo.ListByStatus(ctx, status, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	views := make([]View, 0, len(rows))
	for i := range rows {
		views = append(views, *toView(&rows[i]))
	}
	return views, nil
}

// StatusStats holds the per-state order counts. Absent states report
// zero so dashboards always see the full set.
type StatusStats struct {
	Pending   int64 `json:"pending"`
	Confirmed int64 `json:"confirmed"`
	Preparing int64 `json:"preparing"`
	Shipped   int64 `json:"shipped"`
	Delivered int64 `json:"delivered"`
	Cancelled int64 `json:"cancelled"`
	Total     int64 `json:"total"`
}

func (s *service) Stats(ctx context.Context) (*StatusStats, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count orders")
	}
	stats := &StatusStats{
		Pending:   counts[enums.OrderStatusPending],
		Confirmed: counts[enums.OrderStatusConfirmed],
		Preparing: counts[enums.OrderStatusPreparing],
		Shipped:   counts[enums.OrderStatusShipped],
		Delivered: counts[enums.OrderStatusDelivered],
		Cancelled: counts[enums.OrderStatusCancelled],
	}
	stats.Total = stats.Pending + stats.Confirmed + stats.Preparing +
		stats.Shipped + stats.Delivered + stats.Cancelled
	return stats, nil
}

func (s *service) Confirm(ctx context.Context, id uint) (*View, error) {
	return s.transition(ctx, id, []enums.OrderStatus{enums.OrderStatusPending}, enums.OrderStatusConfirmed, nil, outbox.EventOrderConfirmed)
}

func (s *service) StartPreparing(ctx context.Context, id uint) (*View, error) {
	return s.transition(ctx, id, []enums.OrderStatus{enums.OrderStatusConfirmed}, enums.OrderStatusPreparing, nil, "")
}

func (s *service) Ship(ctx context.Context, id uint, req ShipRequest) (*View, error) {
	if req.Carrier == "" || req.TrackingNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "carrier and tracking number required")
	}
	updates := map[string]any{
		"carrier":         req.Carrier,
		"tracking_number": req.TrackingNumber,
	}
	return s.transition(ctx, id, shippableStates, enums.OrderStatusShipped, updates, outbox.EventOrderShipped)
}

// Preparing is an optional step; an order can ship straight from
// confirmed.
var shippableStates = []enums.OrderStatus{enums.OrderStatusConfirmed, enums.OrderStatusPreparing}

func (s *service) Deliver(ctx context.Context, id uint) (*View, error) {
	updates := map[string]any{"delivered_at": s.now()}
	return s.transition(ctx, id, []enums.OrderStatus{enums.OrderStatusShipped}, enums.OrderStatusDelivered, updates, outbox.EventOrderDelivered)
}

// ChangeState is the administrative entry point: it drives the same
// guarded transitions as the dedicated operations, so an admin cannot
// skip over the compensation or delivery stamping those paths carry.
// Shipping through here does not require tracking details.
func (s *service) ChangeState(ctx context.Context, id uint, target enums.OrderStatus, reason string) (*View, error) {
	switch target {
	case enums.OrderStatusConfirmed:
		return s.Confirm(ctx, id)
	case enums.OrderStatusPreparing:
		return s.StartPreparing(ctx, id)
	case enums.OrderStatusShipped:
		return s.transition(ctx, id, shippableStates, enums.OrderStatusShipped, nil, outbox.EventOrderShipped)
	case enums.OrderStatusDelivered:
		return s.Deliver(ctx, id)
	case enums.OrderStatusCancelled:
		return s.Cancel(ctx, id, reason)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported target state").
			WithDetails(map[string]any{"target": string(target)})
	}
}

// Cancel moves a cancellable order to cancelled and restores stock for
// every line. Restores are best effort after commit; a failed restore is
// queued for the reconciliation worker rather than undoing the
// cancellation.
func (s *service) Cancel(ctx context.Context, id uint, reason string) (*View, error) {
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.Status.Cancellable() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be cancelled").
			WithDetails(map[string]any{
				"order_id": id,
				"status":   order.Status.String(),
			})
	}

	previous := order.Status
	updates := map[string]any{
		"cancelled_at": s.now(),
	}
	if reason != "" {
		updates["cancel_reason"] = reason
	}

	ctx = s.logg.WithOrderNumber(ctx, order.OrderNumber)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		affected, err := s.repo.WithTx(tx).TransitionStatus(ctx, id,
			[]enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusConfirmed, enums.OrderStatusPreparing},
			enums.OrderStatusCancelled, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be cancelled").
				WithDetails(map[string]any{"order_id": id})
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     outbox.EventOrderCancelled,
			AggregateType: outbox.AggregateOrder,
			AggregateID:   order.OrderNumber,
			Version:       1,
			Data: OrderStateChangedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				From:        previous,
				To:          enums.OrderStatusCancelled,
				Reason:      reason,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncOrderCancelled()
	s.restoreStock(ctx, order)
	s.logg.Info(ctx, "order cancelled")

	order.Status = enums.OrderStatusCancelled
	if reason != "" {
		order.CancelReason = &reason
	}
	now := s.now()
	order.CancelledAt = &now

	if s.notifier != nil {
		if err := s.notifier.SendStateChangeNotice(ctx, order, previous); err != nil {
			s.logg.Warn(ctx, "cancellation notice failed: "+err.Error())
		}
	}
	return toView(order), nil
}

func (s *service) restoreStock(ctx context.Context, order *models.Order) {
	actor := "cancel:" + order.OrderNumber
	for _, item := range order.Items {
		err := s.stock.Increment(ctx, item.ProductID, item.Quantity, actor, enums.MovementReasonCancellationReversal)
		if err == nil {
			continue
		}
		s.logg.Error(ctx, "stock restore failed, queueing compensation", err)
		if s.comp == nil {
			continue
		}
		task := CompensationTask{
			OrderNumber: order.OrderNumber,
			ProductID:   item.ProductID,
			Quantity:    item.Quantity,
		}
		if qErr := s.comp.EnqueueRestore(ctx, task); qErr != nil {
			s.logg.Error(ctx, "compensation enqueue failed", qErr)
		}
	}
}

func (s *service) transition(ctx context.Context, id uint, from []enums.OrderStatus, to enums.OrderStatus, updates map[string]any, eventType string) (*View, error) {
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := order.Status

	ctx = s.logg.WithOrderNumber(ctx, order.OrderNumber)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		affected, err := s.repo.WithTx(tx).TransitionStatus(ctx, id, from, to, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transition order")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "illegal order transition").
				WithDetails(map[string]any{
					"order_id": id,
					"status":   previous.String(),
					"target":   to.String(),
				})
		}
		if eventType == "" {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: outbox.AggregateOrder,
			AggregateID:   order.OrderNumber,
			Version:       1,
			Data: OrderStateChangedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				From:        previous,
				To:          to,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	refreshed, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		if err := s.notifier.SendStateChangeNotice(ctx, refreshed, previous); err != nil {
			s.logg.Warn(ctx, "state change notice failed: "+err.Error())
		}
	}
	return toView(refreshed), nil
}

func (s *service) load(ctx context.Context, id uint) (*models.Order, error) {
	if id == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found").
				WithDetails(map[string]any{"order_id": id})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) validateCreate(req CreateRequest) error {
	if req.CustomerID == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if req.ShippingAddress == "" || req.ContactPhone == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping address and contact phone required")
	}
	if !req.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method").
			WithDetails(map[string]any{"payment_method": string(req.PaymentMethod)})
	}
	if len(req.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order needs at least one item")
	}
	seen := make(map[uint]bool, len(req.Items))
	for _, line := range req.Items {
		if line.ProductID == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "product id required on every line")
		}
		if line.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
		if line.UnitDiscount.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, "discount cannot be negative").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
		if seen[line.ProductID] {
			return pkgerrors.New(pkgerrors.CodeValidation, "duplicate product line").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
		seen[line.ProductID] = true
	}
	return nil
}

func toView(order *models.Order) *View {
	items := make([]LineView, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, LineView{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
			UnitDiscount: item.UnitDiscount,
			LineTotal:    item.LineTotal,
		})
	}
	return &View{
		ID:                  order.ID,
		OrderNumber:         order.OrderNumber,
		CustomerID:          order.CustomerID,
		Status:              order.Status,
		PaymentMethod:       order.PaymentMethod,
		ShippingAddress:     order.ShippingAddress,
		ContactPhone:        order.ContactPhone,
		Subtotal:            order.Subtotal,
		Discount:            order.Discount,
		ShippingCost:        order.ShippingCost,
		Tax:                 order.Tax,
		Total:               order.Total,
		Carrier:             order.Carrier,
		TrackingNumber:      order.TrackingNumber,
		CancelReason:        order.CancelReason,
		PlacedAt:            order.PlacedAt,
		EstimatedDeliveryAt: order.EstimatedDeliveryAt,
		DeliveredAt:         order.DeliveredAt,
		CancelledAt:         order.CancelledAt,
		Items:               items,
	}
}
