package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ecovivashop/ecoviva-backend/api/controllers"
	"github.com/ecovivashop/ecoviva-backend/api/middleware"
	"github.com/ecovivashop/ecoviva-backend/internal/catalog"
	"github.com/ecovivashop/ecoviva-backend/internal/inventory"
	"github.com/ecovivashop/ecoviva-backend/internal/orders"
	"github.com/ecovivashop/ecoviva-backend/internal/payments"
	"github.com/ecovivashop/ecoviva-backend/pkg/config"
	"github.com/ecovivashop/ecoviva-backend/pkg/logger"
)

// NewRouter assembles the HTTP surface over the storefront services.
// Readiness dependencies are passed as a map so callers can wire only
// the clients their deployment actually uses.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	readiness map[string]controllers.Pinger,
	metricsHandler http.Handler,
	catalogService catalog.Service,
	provisioner *catalog.Provisioner,
	inventoryService inventory.Service,
	ordersService orders.Service,
	paymentsService payments.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/", controllers.ListProducts(catalogService, logg))
		if provisioner != nil {
			r.Post("/", controllers.CreateProduct(provisioner, logg))
		}
		r.Get("/{productID}", controllers.GetProduct(catalogService, logg))
	})

	r.Route("/api/v1/inventory", func(r chi.Router) {
		r.Get("/alerts", controllers.ListInventoryAlerts(inventoryService, logg))
		r.Get("/{productID}", controllers.GetInventory(inventoryService, logg))
		r.Get("/{productID}/availability", controllers.CheckAvailability(inventoryService, logg))
		r.Get("/{productID}/movements", controllers.ListInventoryMovements(inventoryService, logg))
		r.Post("/{productID}/restock", controllers.RestockInventory(inventoryService, logg))
		r.Put("/{productID}/stock", controllers.SetStock(inventoryService, logg))
		r.Put("/{productID}/thresholds", controllers.UpdateThresholds(inventoryService, logg))
	})

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Post("/", controllers.CreateOrder(ordersService, logg))
		r.Get("/", controllers.ListOrders(ordersService, logg))
		r.Get("/stats", controllers.OrderStats(ordersService, logg))
		r.Get("/{orderID}", controllers.GetOrder(ordersService, logg))
		r.Get("/number/{orderNumber}", controllers.GetOrderByNumber(ordersService, logg))
		r.Get("/customer/{customerID}", controllers.ListCustomerOrders(ordersService, logg))
		r.Post("/{orderID}/confirm", controllers.ConfirmOrder(ordersService, logg))
		r.Post("/{orderID}/prepare", controllers.PrepareOrder(ordersService, logg))
		r.Post("/{orderID}/ship", controllers.ShipOrder(ordersService, logg))
		r.Post("/{orderID}/deliver", controllers.DeliverOrder(ordersService, logg))
		r.Post("/{orderID}/cancel", controllers.CancelOrder(ordersService, logg))
		r.Post("/{orderID}/state", controllers.ChangeOrderState(ordersService, logg))
	})

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Post("/", controllers.ProcessPayment(paymentsService, logg))
		r.Get("/{transactionID}", controllers.GetTransaction(paymentsService, logg))
		r.Post("/{transactionID}/confirm", controllers.ConfirmPayment(paymentsService, logg))
		r.Get("/order/{orderNumber}", controllers.ListOrderTransactions(paymentsService, logg))
	})

	return r
}
