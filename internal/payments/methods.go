package payments

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ecovivashop/ecoviva-backend/pkg/config"
	"github.com/ecovivashop/ecoviva-backend/pkg/enums"
	pkgerrors "github.com/ecovivashop/ecoviva-backend/pkg/errors"
)

// mobile wallet accounts are local 9-digit numbers starting with 9
var walletPhoneRe = regexp.MustCompile(`^9\d{8}$`)

// AuthorizationResult is what a method handler resolves an attempt to.
type AuthorizationResult struct {
	Status            enums.TransactionStatus
	AuthorizationCode string
	Reference         string
	Message           string
}

// methodHandler is implemented once per payment method. Validate runs
// before any row transition, Authorize resolves the attempt.
type methodHandler interface {
	Validate(req ProcessRequest) error
	Authorize(ctx context.Context, req ProcessRequest) (AuthorizationResult, error)
	Gateway() enums.Gateway
}

type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// cardHandler simulates an acquirer round trip for credit and debit cards.
type cardHandler struct {
	cfg   config.GatewayConfig
	rng   *rand.Rand
	sleep sleepFunc
	now   func() time.Time
}

func (h cardHandler) Gateway() enums.Gateway {
	return enums.GatewayCulqi
}

func (h cardHandler) Validate(req ProcessRequest) error {
	number := strings.ReplaceAll(req.Card.Number, " ", "")
	if len(number) < 13 {
		return pkgerrors.New(pkgerrors.CodeValidation, "card number too short")
	}
	if len(req.Card.CVV) < 3 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid cvv")
	}
	if req.Card.ExpMonth < 1 || req.Card.ExpMonth > 12 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid expiry month")
	}
	if req.Card.ExpYear < h.now().Year() {
		return pkgerrors.New(pkgerrors.CodeValidation, "card expired")
	}
	return nil
}

func (h cardHandler) Authorize(ctx context.Context, req ProcessRequest) (AuthorizationResult, error) {
	if err := h.sleep(ctx, h.cfg.Latency); err != nil {
		return AuthorizationResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "gateway call aborted")
	}
	if h.rng.Float64() >= h.cfg.SuccessRate {
		return AuthorizationResult{
			Status:    enums.TransactionStatusRejected,
			Reference: maskCardNumber(req.Card.Number),
			Message:   "payment declined by gateway",
		}, nil
	}
	return AuthorizationResult{
		Status:            enums.TransactionStatusCompleted,
		AuthorizationCode: "CONF_" + randomToken(8),
		Reference:         maskCardNumber(req.Card.Number),
		Message:           "payment authorized",
	}, nil
}

// walletHandler covers the Yape and Plin mobile wallet schemes. Both
// resolve to pending with a token; completion happens via ConfirmPayment.
type walletHandler struct {
	scheme enums.PaymentMethod
}

func (h walletHandler) Gateway() enums.Gateway {
	return enums.GatewayInternal
}

func (h walletHandler) Validate(req ProcessRequest) error {
	if !walletPhoneRe.MatchString(req.WalletPhone) {
		return pkgerrors.New(pkgerrors.CodeValidation, "wallet phone must be 9 digits starting with 9").
			WithDetails(map[string]any{"phone": req.WalletPhone})
	}
	return nil
}

func (h walletHandler) Authorize(ctx context.Context, req ProcessRequest) (AuthorizationResult, error) {
	prefix := "YAPE_"
	if h.scheme == enums.PaymentMethodPlin {
		prefix = "PLIN_"
	}
	token := prefix + randomToken(12)
	return AuthorizationResult{
		Status:            enums.TransactionStatusPending,
		AuthorizationCode: token,
		Reference:         req.WalletPhone,
		Message:           fmt.Sprintf("scan the QR or approve token %s in the wallet app", token),
	}, nil
}

// codHandler models cash on delivery. No money moves until the courier
// hands over the package, so the attempt stays pending.
type codHandler struct{}

func (h codHandler) Gateway() enums.Gateway {
	return enums.GatewayInternal
}

func (h codHandler) Validate(req ProcessRequest) error {
	if strings.TrimSpace(req.DeliveryAddress) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery address required for cash on delivery")
	}
	if strings.TrimSpace(req.ContactPhone) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "contact phone required for cash on delivery")
	}
	return nil
}

func (h codHandler) Authorize(ctx context.Context, req ProcessRequest) (AuthorizationResult, error) {
	return AuthorizationResult{
		Status:    enums.TransactionStatusPending,
		Reference: req.ContactPhone,
		Message:   "pay the courier in cash upon delivery",
	}, nil
}

func handlerFor(method enums.PaymentMethod, cfg config.GatewayConfig, rng *rand.Rand, sleep sleepFunc, now func() time.Time) (methodHandler, error) {
	switch method {
	case enums.PaymentMethodCreditCard, enums.PaymentMethodDebitCard:
		return cardHandler{cfg: cfg, rng: rng, sleep: sleep, now: now}, nil
	case enums.PaymentMethodYape, enums.PaymentMethodPlin:
		return walletHandler{scheme: method}, nil
	case enums.PaymentMethodCashOnDelivery:
		return codHandler{}, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method").
			WithDetails(map[string]any{"method": string(method)})
	}
}

func randomToken(length int) string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	if length > len(raw) {
		length = len(raw)
	}
	return raw[:length]
}

func maskCardNumber(number string) string {
	digits := strings.ReplaceAll(number, " ", "")
	if len(digits) < 4 {
		return "****"
	}
	return "**** **** **** " + digits[len(digits)-4:]
}
