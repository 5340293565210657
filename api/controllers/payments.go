package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ecovivashop/ecoviva-backend/api/responses"
	"github.com/ecovivashop/ecoviva-backend/api/validators"
	"github.com/ecovivashop/ecoviva-backend/internal/payments"
	"github.com/ecovivashop/ecoviva-backend/pkg/enums"
	pkgerrors "github.com/ecovivashop/ecoviva-backend/pkg/errors"
	"github.com/ecovivashop/ecoviva-backend/pkg/logger"
)

type processPaymentRequest struct {
	OrderNumber string          `json:"order_number" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Currency    string          `json:"currency"`
	Method      string          `json:"method" validate:"required"`

	CustomerName     string `json:"customer_name" validate:"required"`
	CustomerEmail    string `json:"customer_email" validate:"required,email"`
	CustomerPhone    string `json:"customer_phone"`
	CustomerDocument string `json:"customer_document"`

	CardHolder   string `json:"card_holder"`
	CardNumber   string `json:"card_number"`
	CardCVV      string `json:"card_cvv"`
	CardExpMonth int    `json:"card_exp_month"`
	CardExpYear  int    `json:"card_exp_year"`

	WalletPhone     string `json:"wallet_phone"`
	DeliveryAddress string `json:"delivery_address"`
	ContactPhone    string `json:"contact_phone"`
	SubscriptionID  *uint  `json:"subscription_id"`
}

func (r processPaymentRequest) toServiceRequest(method enums.PaymentMethod) payments.ProcessRequest {
	return payments.ProcessRequest{
		OrderNumber: r.OrderNumber,
		Amount:      r.Amount,
		Currency:    r.Currency,
		Method:      method,
		Customer: payments.CustomerSnapshot{
			Name:     r.CustomerName,
			Email:    r.CustomerEmail,
			Phone:    r.CustomerPhone,
			Document: r.CustomerDocument,
		},
		Card: payments.CardDetails{
			Holder:   r.CardHolder,
			Number:   r.CardNumber,
			CVV:      r.CardCVV,
			ExpMonth: r.CardExpMonth,
			ExpYear:  r.CardExpYear,
		},
		WalletPhone:     r.WalletPhone,
		DeliveryAddress: r.DeliveryAddress,
		ContactPhone:    r.ContactPhone,
		SubscriptionID:  r.SubscriptionID,
	}
}

func ProcessPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req processPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := enums.ParsePaymentMethod(req.Method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}
		outcome, err := svc.ProcessPayment(r.Context(), req.toServiceRequest(method))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, outcome)
	}
}

type confirmPaymentRequest struct {
	ConfirmationCode string `json:"confirmation_code" validate:"required,min=6"`
}

func ConfirmPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUint(chi.URLParam(r, "transactionID"), "transactionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req confirmPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		outcome, err := svc.ConfirmPayment(r.Context(), id, req.ConfirmationCode)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, outcome)
	}
}

type transactionView struct {
	ID                uint    `json:"id"`
	OrderNumber       string  `json:"order_number"`
	Amount            string  `json:"amount"`
	Currency          string  `json:"currency"`
	Method            string  `json:"method"`
	Gateway           string  `json:"gateway"`
	Status            string  `json:"status"`
	AuthorizationCode *string `json:"authorization_code,omitempty"`
	ExternalReference *string `json:"external_reference,omitempty"`
	FailureReason     *string `json:"failure_reason,omitempty"`
	RetryCount        int     `json:"retry_count"`
}

func GetTransaction(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUint(chi.URLParam(r, "transactionID"), "transactionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		transaction, err := svc.GetTransaction(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, transactionView{
			ID:                transaction.ID,
			OrderNumber:       transaction.OrderNumber,
			Amount:            transaction.Amount.StringFixed(2),
			Currency:          transaction.Currency,
			Method:            transaction.Method.String(),
			Gateway:           transaction.Gateway.String(),
			Status:            transaction.Status.String(),
			AuthorizationCode: transaction.AuthorizationCode,
			ExternalReference: transaction.ExternalReference,
			FailureReason:     transaction.FailureReason,
			RetryCount:        transaction.RetryCount,
		})
	}
}

func ListOrderTransactions(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := svc.ListByOrderNumber(r.Context(), chi.URLParam(r, "orderNumber"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views := make([]transactionView, 0, len(rows))
		for _, transaction := range rows {
			views = append(views, transactionView{
				ID:                transaction.ID,
				OrderNumber:       transaction.OrderNumber,
				Amount:            transaction.Amount.StringFixed(2),
				Currency:          transaction.Currency,
				Method:            transaction.Method.String(),
				Gateway:           transaction.Gateway.String(),
				Status:            transaction.Status.String(),
				AuthorizationCode: transaction.AuthorizationCode,
				ExternalReference: transaction.ExternalReference,
				FailureReason:     transaction.FailureReason,
				RetryCount:        transaction.RetryCount,
			})
		}
		responses.WriteSuccess(w, views)
	}
}
