package payments

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ecovivashop/ecoviva-backend/pkg/config"
	"github.com/ecovivashop/ecoviva-backend/pkg/db/models"
	"github.com/ecovivashop/ecoviva-backend/pkg/enums"
	pkgerrors "github.com/ecovivashop/ecoviva-backend/pkg/errors"
	"github.com/ecovivashop/ecoviva-backend/pkg/logger"
	"github.com/ecovivashop/ecoviva-backend/pkg/metrics"
	"github.com/ecovivashop/ecoviva-backend/pkg/outbox"
)

const minConfirmationCodeLen = 6

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// CardDetails carries the raw card fields for a card attempt. The number
// is never persisted, only its masked form.
type CardDetails struct {
	Holder   string
	Number   string
	CVV      string
	ExpMonth int
	ExpYear  int
}

// CustomerSnapshot is denormalized onto the transaction row.
type CustomerSnapshot struct {
	Name     string
	Email    string
	Phone    string
	Document string
}

// ProcessRequest describes one payment attempt.
type ProcessRequest struct {
	OrderNumber     string
	Amount          decimal.Decimal
	Currency        string
	Method          enums.PaymentMethod
	Customer        CustomerSnapshot
	Card            CardDetails
	WalletPhone     string
	DeliveryAddress string
	ContactPhone    string
	SubscriptionID  *uint
}

// Outcome is what callers decide on after an attempt or confirmation.
type Outcome struct {
	TransactionID     uint                    `json:"transaction_id"`
	OrderNumber       string                  `json:"order_number"`
	Status            enums.TransactionStatus `json:"status"`
	AuthorizationCode string                  `json:"authorization_code,omitempty"`
	Reference         string                  `json:"reference,omitempty"`
	Message           string                  `json:"message,omitempty"`
}

// PaymentCompletedEvent is published when a transaction settles.
type PaymentCompletedEvent struct {
	TransactionID uint                `json:"transaction_id"`
	OrderNumber   string              `json:"order_number"`
	Method        enums.PaymentMethod `json:"method"`
	Amount        decimal.Decimal     `json:"amount"`
	Currency      string              `json:"currency"`
}

// PaymentRejectedEvent is published when an attempt terminally fails.
type PaymentRejectedEvent struct {
	TransactionID uint                `json:"transaction_id"`
	OrderNumber   string              `json:"order_number"`
	Method        enums.PaymentMethod `json:"method"`
	Reason        string              `json:"reason"`
}

// Service is the simulated multi-method payment processor.
type Service interface {
	ProcessPayment(ctx context.Context, req ProcessRequest) (*Outcome, error)
	ConfirmPayment(ctx context.Context, transactionID uint, confirmationCode string) (*Outcome, error)
	GetTransaction(ctx context.Context, transactionID uint) (*models.PaymentTransaction, error)
	ListByOrderNumber(ctx context.Context, orderNumber string) ([]models.PaymentTransaction, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	logg    *logger.Logger
	metrics *metrics.StoreMetrics
	gateway config.GatewayConfig
	rng     *rand.Rand
	sleep   sleepFunc
	now     func() time.Time
}

// Options tune simulation internals, mainly for tests.
type Options struct {
	Rand  *rand.Rand
	Sleep sleepFunc
	Now   func() time.Time
}

// NewService wires the payment processor dependencies.
func NewService(repo Repository, tx txRunner, ob outboxPublisher, logg *logger.Logger, m *metrics.StoreMetrics, gateway config.GatewayConfig, opts Options) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payments repository required")
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
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepWithContext
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:    repo,
		tx:      tx,
		outbox:  ob,
		logg:    logg,
		metrics: m,
		gateway: gateway,
		rng:     rng,
		sleep:   sleep,
		now:     now,
	}, nil
}

// ProcessPayment creates a fresh PENDING transaction for the attempt and
// dispatches to the method handler. Retried payments never reuse a row;
// retry_count records how many attempts preceded this one.
func (s *service) ProcessPayment(ctx context.Context, req ProcessRequest) (*Outcome, error) {
	if req.OrderNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}
	if !req.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if req.Customer.Name == "" || req.Customer.Email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer name and email required")
	}

	// an unknown method still gets a transaction row; the attempt is
	// recorded and resolved as rejected below
	handler, handlerErr := handlerFor(req.Method, s.gateway, s.rng, s.sleep, s.now)
	gatewayName := enums.GatewayUnknown
	if handlerErr == nil {
		gatewayName = handler.Gateway()
	}

	currency := req.Currency
	if currency == "" {
		currency = "PEN"
	}

	priorAttempts, err := s.repo.CountByOrderNumber(ctx, req.OrderNumber)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count prior attempts")
	}

	transaction := &models.PaymentTransaction{
		OrderNumber:      req.OrderNumber,
		SubscriptionID:   req.SubscriptionID,
		Amount:           req.Amount,
		Currency:         currency,
		Method:           req.Method,
		Gateway:          gatewayName,
		Status:           enums.TransactionStatusPending,
		CustomerName:     req.Customer.Name,
		CustomerEmail:    req.Customer.Email,
		CustomerPhone:    req.Customer.Phone,
		CustomerDocument: req.Customer.Document,
		RetryCount:       int(priorAttempts),
	}
	if _, err := s.repo.Create(ctx, transaction); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment transaction")
	}

	ctx = s.logg.WithOrderNumber(ctx, req.OrderNumber)

	if handlerErr != nil {
		if markErr := s.markRejected(ctx, transaction, "unsupported method"); markErr != nil {
			return nil, markErr
		}
		s.metrics.IncPaymentOutcome(req.Method.String(), enums.TransactionStatusRejected.String())
		return s.outcome(transaction, "", "", "unsupported method"), nil
	}

	if err := handler.Validate(req); err != nil {
		reason := err.Error()
		if markErr := s.markRejected(ctx, transaction, reason); markErr != nil {
			return nil, markErr
		}
		s.metrics.IncPaymentOutcome(req.Method.String(), enums.TransactionStatusRejected.String())
		if req.Method.IsCard() {
			// card field problems resolve the attempt, they are not caller errors
			return s.outcome(transaction, "", "", "card validation failed: "+reason), nil
		}
		return nil, err
	}

	started := s.now()
	result, err := handler.Authorize(ctx, req)
	if err != nil {
		if markErr := s.markErrored(ctx, transaction, err.Error()); markErr != nil {
			s.logg.Error(ctx, "failed to mark transaction errored", markErr)
		}
		s.metrics.IncPaymentOutcome(req.Method.String(), enums.TransactionStatusError.String())
		return nil, err
	}
	if req.Method.IsCard() {
		s.metrics.ObserveGatewayLatency(s.now().Sub(started))
	}

	switch result.Status {
	case enums.TransactionStatusCompleted:
		if err := s.settle(ctx, transaction, result); err != nil {
			return nil, err
		}
	case enums.TransactionStatusRejected:
		if err := s.markRejectedWithEvent(ctx, transaction, result); err != nil {
			return nil, err
		}
	case enums.TransactionStatusPending:
		if err := s.storePendingAuthorization(ctx, transaction, result); err != nil {
			return nil, err
		}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "handler resolved to unknown status")
	}

	s.metrics.IncPaymentOutcome(req.Method.String(), result.Status.String())
	transaction.Status = result.Status
	return s.outcome(transaction, result.AuthorizationCode, result.Reference, result.Message), nil
}

// ConfirmPayment completes a pending transaction once the out-of-band
// code matches the one stored at authorization time.
func (s *service) ConfirmPayment(ctx context.Context, transactionID uint, confirmationCode string) (*Outcome, error) {
	transaction, err := s.repo.FindByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found").
				WithDetails(map[string]any{"transaction_id": transactionID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	if transaction.Status != enums.TransactionStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "transaction is not pending").
			WithDetails(map[string]any{
				"transaction_id": transactionID,
				"status":         transaction.Status.String(),
			})
	}
	if len(confirmationCode) < minConfirmationCodeLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "confirmation code too short")
	}
	if transaction.AuthorizationCode == nil || *transaction.AuthorizationCode != confirmationCode {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "confirmation code does not match").
			WithDetails(map[string]any{"transaction_id": transactionID})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		affected, err := repo.TransitionStatus(ctx, transaction.ID,
			enums.TransactionStatusPending, enums.TransactionStatusCompleted,
			map[string]any{"authorized_at": s.now()})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete transaction")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction already resolved")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     outbox.EventPaymentCompleted,
			AggregateType: outbox.AggregatePayment,
			AggregateID:   formatID(transaction.ID),
			Version:       1,
			Data: PaymentCompletedEvent{
				TransactionID: transaction.ID,
				OrderNumber:   transaction.OrderNumber,
				Method:        transaction.Method,
				Amount:        transaction.Amount,
				Currency:      transaction.Currency,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncPaymentOutcome(transaction.Method.String(), enums.TransactionStatusCompleted.String())
	transaction.Status = enums.TransactionStatusCompleted
	code := ""
	if transaction.AuthorizationCode != nil {
		code = *transaction.AuthorizationCode
	}
	return s.outcome(transaction, code, "", "payment confirmed"), nil
}

func (s *service) GetTransaction(ctx context.Context, transactionID uint) (*models.PaymentTransaction, error) {
	transaction, err := s.repo.FindByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found").
				WithDetails(map[string]any{"transaction_id": transactionID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	return transaction, nil
}

func (s *service) ListByOrderNumber(ctx context.Context, orderNumber string) ([]models.PaymentTransaction, error) {
	if orderNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}
	rows, err := s.repo.FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	return rows, nil
}

func (s *service) settle(ctx context.Context, transaction *models.PaymentTransaction, result AuthorizationResult) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		affected, err := repo.TransitionStatus(ctx, transaction.ID,
			enums.TransactionStatusPending, enums.TransactionStatusCompleted,
			map[string]any{
				"authorization_code": result.AuthorizationCode,
				"external_reference": result.Reference,
				"authorized_at":      s.now(),
			})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle transaction")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction already resolved")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     outbox.EventPaymentCompleted,
			AggregateType: outbox.AggregatePayment,
			AggregateID:   formatID(transaction.ID),
			Version:       1,
			Data: PaymentCompletedEvent{
				TransactionID: transaction.ID,
				OrderNumber:   transaction.OrderNumber,
				Method:        transaction.Method,
				Amount:        transaction.Amount,
				Currency:      transaction.Currency,
			},
		})
	})
}

func (s *service) markRejectedWithEvent(ctx context.Context, transaction *models.PaymentTransaction, result AuthorizationResult) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		affected, err := repo.TransitionStatus(ctx, transaction.ID,
			enums.TransactionStatusPending, enums.TransactionStatusRejected,
			map[string]any{
				"failure_reason":     result.Message,
				"external_reference": result.Reference,
			})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject transaction")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction already resolved")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     outbox.EventPaymentRejected,
			AggregateType: outbox.AggregatePayment,
			AggregateID:   formatID(transaction.ID),
			Version:       1,
			Data: PaymentRejectedEvent{
				TransactionID: transaction.ID,
				OrderNumber:   transaction.OrderNumber,
				Method:        transaction.Method,
				Reason:        result.Message,
			},
		})
	})
}

func (s *service) markRejected(ctx context.Context, transaction *models.PaymentTransaction, reason string) error {
	_, err := s.repo.TransitionStatus(ctx, transaction.ID,
		enums.TransactionStatusPending, enums.TransactionStatusRejected,
		map[string]any{"failure_reason": reason})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject transaction")
	}
	transaction.Status = enums.TransactionStatusRejected
	return nil
}

func (s *service) markErrored(ctx context.Context, transaction *models.PaymentTransaction, reason string) error {
	_, err := s.repo.TransitionStatus(ctx, transaction.ID,
		enums.TransactionStatusPending, enums.TransactionStatusError,
		map[string]any{"failure_reason": reason})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark transaction errored")
	}
	transaction.Status = enums.TransactionStatusError
	return nil
}

func (s *service) storePendingAuthorization(ctx context.Context, transaction *models.PaymentTransaction, result AuthorizationResult) error {
	updates := map[string]any{"external_reference": result.Reference}
	if result.AuthorizationCode != "" {
		updates["authorization_code"] = result.AuthorizationCode
	}
	affected, err := s.repo.TransitionStatus(ctx, transaction.ID,
		enums.TransactionStatusPending, enums.TransactionStatusPending, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store pending authorization")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction already resolved")
	}
	if result.AuthorizationCode != "" {
		code := result.AuthorizationCode
		transaction.AuthorizationCode = &code
	}
	return nil
}

func (s *service) outcome(transaction *models.PaymentTransaction, code, reference, message string) *Outcome {
	return &Outcome{
		TransactionID:     transaction.ID,
		OrderNumber:       transaction.OrderNumber,
		Status:            transaction.Status,
		AuthorizationCode: code,
		Reference:         reference,
		Message:           message,
	}
}

func formatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
