package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/coffeevend-system/internal/admin"
	custommiddleware "github.com/mmeshcher/coffeevend-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware кофейного сервиса.
func (h *Handler) SetupRouter(verifier admin.Verifier) *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/api/menu", h.GetMenu)

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/balance", h.GetBalance)
			r.Post("/balance/topup", h.TopUp)

			r.Post("/orders", h.CreateOrder)
			r.Get("/orders", h.GetOrders)
			r.Get("/orders/{orderID}", h.GetOrder)
			r.Post("/orders/{orderID}/payment", h.Pay)
			r.Post("/orders/{orderID}/cancel", h.Cancel)
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(custommiddleware.AdminAuth(verifier))

		r.Get("/users", h.AdminUsers)

		r.Get("/menu", h.AdminMenu)
		r.Post("/menu", h.AdminAddMenuItem)
		r.Put("/menu/{coffeeID}", h.AdminUpdateMenuItem)

		r.Get("/orders", h.AdminOrders)
		r.Post("/orders/{orderID}/status", h.AdminUpdateOrderStatus)

		r.Get("/ingredients", h.AdminIngredients)
		r.Post("/ingredients", h.AdminAddIngredient)
		r.Get("/ingredients/low-stock", h.AdminLowStockIngredients)
		r.Put("/ingredients/{ingredientID}", h.AdminUpdateIngredientQuantity)

		r.Get("/reports/summary", h.AdminReportSummary)
		r.Get("/reports/daily", h.AdminReportDaily)
		r.Get("/reports/weekly", h.AdminReportWeekly)
		r.Get("/reports/monthly", h.AdminReportMonthly)
		r.Get("/reports/users", h.AdminReportUsers)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
