package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ecovivashop/ecoviva-backend/api/responses"
	"github.com/ecovivashop/ecoviva-backend/api/validators"
	"github.com/ecovivashop/ecoviva-backend/internal/inventory"
	"github.com/ecovivashop/ecoviva-backend/pkg/db/models"
	"github.com/ecovivashop/ecoviva-backend/pkg/enums"
	"github.com/ecovivashop/ecoviva-backend/pkg/logger"
)

const maxMovementPageSize = 200

type inventoryView struct {
	ProductID uint    `json:"product_id"`
	Stock     int     `json:"stock"`
	Minimum   int     `json:"minimum"`
	Maximum   *int    `json:"maximum,omitempty"`
	Location  *string `json:"location,omitempty"`
	State     string  `json:"state"`
	Active    bool    `json:"active"`
}

func toInventoryView(record *models.InventoryRecord) inventoryView {
	return inventoryView{
		ProductID: record.ProductID,
		Stock:     record.Stock,
		Minimum:   record.Minimum,
		Maximum:   record.Maximum,
		Location:  record.Location,
		State:     record.State().String(),
		Active:    record.Active,
	}
}

func GetInventory(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParsePathUint(chi.URLParam(r, "productID"), "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		record, err := svc.GetRecord(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toInventoryView(record))
	}
}

type adjustStockRequest struct {
	Quantity int    `json:"quantity" validate:"required,gt=0"`
	Actor    string `json:"actor" validate:"required"`
}

func RestockInventory(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParsePathUint(chi.URLParam(r, "productID"), "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req adjustStockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Increment(r.Context(), productID, req.Quantity, req.Actor, enums.MovementReasonRestock); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		record, err := svc.GetRecord(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toInventoryView(record))
	}
}

type setStockRequest struct {
	Stock int    `json:"stock" validate:"gte=0"`
	Actor string `json:"actor" validate:"required"`
}

func SetStock(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParsePathUint(chi.URLParam(r, "productID"), "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req setStockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.SetStock(r.Context(), productID, req.Stock, req.Actor); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		record, err := svc.GetRecord(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toInventoryView(record))
	}
}

type availabilityView struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
	Available bool `json:"available"`
}

// CheckAvailability is advisory only; a sale can still fail at checkout
// if stock moves between the check and the decrement.
func CheckAvailability(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParsePathUint(chi.URLParam(r, "productID"), "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quantity, err := validators.ParseQueryInt(r, "quantity", 1, 1, 1_000_000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		available, err := svc.CheckAvailability(r.Context(), productID, quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, availabilityView{ProductID: productID, Quantity: quantity, Available: available})
	}
}

type thresholdRequest struct {
	Minimum  *int    `json:"minimum" validate:"omitempty,gte=0"`
	Maximum  *int    `json:"maximum" validate:"omitempty,gte=0"`
	Location *string `json:"location"`
	Actor    string  `json:"actor" validate:"required"`
}

func UpdateThresholds(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParsePathUint(chi.URLParam(r, "productID"), "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req thresholdRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		update := inventory.ThresholdUpdate{Minimum: req.Minimum, Maximum: req.Maximum, Location: req.Location}
		if err := svc.UpdateThresholds(r.Context(), productID, update, req.Actor); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		record, err := svc.GetRecord(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toInventoryView(record))
	}
}

func ListInventoryAlerts(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := svc.ListAlerts(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views := make([]inventoryView, 0, len(records))
		for i := range records {
			views = append(views, toInventoryView(&records[i]))
		}
		responses.WriteSuccess(w, views)
	}
}

type movementView struct {
	ProductID uint   `json:"product_id"`
	Delta     int    `json:"delta"`
	Reason    string `json:"reason"`
	Actor     string `json:"actor"`
	CreatedAt string `json:"created_at"`
}

func ListInventoryMovements(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParsePathUint(chi.URLParam(r, "productID"), "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, maxMovementPageSize)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		movements, err := svc.ListMovements(r.Context(), productID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views := make([]movementView, 0, len(movements))
		for _, movement := range movements {
			views = append(views, movementView{
				ProductID: movement.ProductID,
				Delta:     movement.Delta,
				Reason:    movement.Reason.String(),
				Actor:     movement.Actor,
				CreatedAt: movement.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		responses.WriteSuccess(w, views)
	}
}
