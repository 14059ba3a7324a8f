package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/coffeevend-system/internal/model"
	"github.com/mmeshcher/coffeevend-system/internal/repository"
)

type userResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Balance   string `json:"balance"`
	CreatedAt string `json:"created_at"`
}

// AdminUsers возвращает список всех зарегистрированных пользователей.
func (h *Handler) AdminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.GetAllUsers(r.Context())
	if err != nil {
		h.respondError(w, err, "admin list users error")
		return
	}

	resp := make([]userResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, userResponse{
			ID:        u.ID,
			Name:      u.Name,
			Email:     u.Email,
			Balance:   u.Balance.StringFixed(2),
			CreatedAt: u.CreatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, resp)
}

// AdminMenu возвращает полное меню, включая снятые с продажи позиции.
func (h *Handler) AdminMenu(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.GetFullMenu(r.Context())
	if err != nil {
		h.respondError(w, err, "admin list menu error")
		return
	}

	writeJSON(w, toCoffeeResponses(items))
}

type addMenuItemRequest struct {
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
}

type addMenuItemResponse struct {
	ID int64 `json:"id"`
}

// AdminAddMenuItem добавляет новую позицию в меню.
func (h *Handler) AdminAddMenuItem(w http.ResponseWriter, r *http.Request) {
	var req addMenuItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.AddCoffeeItem(r.Context(), req.Name, req.Price, req.Description)
	if err != nil {
		h.respondError(w, err, "admin add menu item error", zap.String("name", req.Name))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(addMenuItemResponse{ID: id}); err != nil {
		h.logger.Error("encode menu item response", zap.Error(err))
	}
}

type updateMenuItemRequest struct {
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Available   bool            `json:"available"`
}

// AdminUpdateMenuItem обновляет существующую позицию меню.
func (h *Handler) AdminUpdateMenuItem(w http.ResponseWriter, r *http.Request) {
	coffeeID, err := strconv.ParseInt(chi.URLParam(r, "coffeeID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req updateMenuItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	item := &model.CoffeeItem{
		ID:          coffeeID,
		Name:        req.Name,
		Price:       req.Price,
		Description: req.Description,
		Available:   req.Available,
	}

	if err := h.service.UpdateCoffeeItem(r.Context(), item); err != nil {
		h.respondError(w, err, "admin update menu item error", zap.Int64("coffeeID", coffeeID))
		return
	}

	w.WriteHeader(http.StatusOK)
}

// AdminOrders возвращает все заказы всех пользователей, новые первыми.
func (h *Handler) AdminOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.GetAllOrders(r.Context())
	if err != nil {
		h.respondError(w, err, "admin list orders error")
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}

	writeJSON(w, resp)
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

// AdminUpdateOrderStatus переводит заказ в следующий статус выполнения.
func (h *Handler) AdminUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDFromURL(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req updateOrderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	next, err := model.ParseOrderStatus(req.Status)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	if err := h.service.UpdateOrderStatus(r.Context(), orderID, next); err != nil {
		h.respondError(w, err, "admin update order status error", zap.Int64("orderID", orderID))
		return
	}

	w.WriteHeader(http.StatusOK)
}

type ingredientResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Quantity     int32  `json:"quantity"`
	Unit         string `json:"unit"`
	MinThreshold int32  `json:"min_threshold"`
	LowStock     bool   `json:"low_stock"`
	UpdatedAt    string `json:"updated_at"`
}

func toIngredientResponses(ingredients []model.Ingredient) []ingredientResponse {
	resp := make([]ingredientResponse, 0, len(ingredients))
	for _, ing := range ingredients {
		resp = append(resp, ingredientResponse{
			ID:           ing.ID,
			Name:         ing.Name,
			Quantity:     ing.Quantity,
			Unit:         ing.Unit,
			MinThreshold: ing.MinThreshold,
			LowStock:     ing.LowStock(),
			UpdatedAt:    ing.UpdatedAt.Format(time.RFC3339),
		})
	}
	return resp
}

// AdminIngredients возвращает все складские позиции.
func (h *Handler) AdminIngredients(w http.ResponseWriter, r *http.Request) {
	ingredients, err := h.service.GetIngredients(r.Context())
	if err != nil {
		h.respondError(w, err, "admin list ingredients error")
		return
	}

	writeJSON(w, toIngredientResponses(ingredients))
}

// AdminLowStockIngredients возвращает позиции, запас которых на пороге или ниже.
func (h *Handler) AdminLowStockIngredients(w http.ResponseWriter, r *http.Request) {
	ingredients, err := h.service.GetLowStockIngredients(r.Context())
	if err != nil {
		h.respondError(w, err, "admin low stock error")
		return
	}

	writeJSON(w, toIngredientResponses(ingredients))
}

type addIngredientRequest struct {
	Name         string `json:"name"`
	Quantity     int32  `json:"quantity"`
	Unit         string `json:"unit"`
	MinThreshold int32  `json:"min_threshold"`
}

type addIngredientResponse struct {
	ID int64 `json:"id"`
}

// AdminAddIngredient добавляет складскую позицию ингредиента.
func (h *Handler) AdminAddIngredient(w http.ResponseWriter, r *http.Request) {
	var req addIngredientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.AddIngredient(r.Context(), req.Name, req.Quantity, req.Unit, req.MinThreshold)
	if err != nil {
		h.respondError(w, err, "admin add ingredient error", zap.String("name", req.Name))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(addIngredientResponse{ID: id}); err != nil {
		h.logger.Error("encode ingredient response", zap.Error(err))
	}
}

type updateIngredientRequest struct {
	Quantity int32 `json:"quantity"`
}

// AdminUpdateIngredientQuantity выставляет остаток ингредиента.
func (h *Handler) AdminUpdateIngredientQuantity(w http.ResponseWriter, r *http.Request) {
	ingredientID, err := strconv.ParseInt(chi.URLParam(r, "ingredientID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req updateIngredientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.SetIngredientQuantity(r.Context(), ingredientID, req.Quantity); err != nil {
		h.respondError(w, err, "admin update ingredient error", zap.Int64("ingredientID", ingredientID))
		return
	}

	w.WriteHeader(http.StatusOK)
}

type reportResponse struct {
	Orders          int64  `json:"orders"`
	CompletedOrders int64  `json:"completed_orders"`
	Revenue         string `json:"revenue"`
}

func toReportResponse(stats *repository.OrderStats) reportResponse {
	return reportResponse{
		Orders:          stats.Orders,
		CompletedOrders: stats.CompletedOrders,
		Revenue:         stats.Revenue.StringFixed(2),
	}
}

// AdminReportSummary возвращает сводку по заказам за всё время.
func (h *Handler) AdminReportSummary(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.ReportSummary(r.Context())
	if err != nil {
		h.respondError(w, err, "admin summary report error")
		return
	}

	writeJSON(w, toReportResponse(stats))
}

// AdminReportDaily возвращает сводку по заказам с начала текущих суток.
func (h *Handler) AdminReportDaily(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.ReportDaily(r.Context())
	if err != nil {
		h.respondError(w, err, "admin daily report error")
		return
	}

	writeJSON(w, toReportResponse(stats))
}

// AdminReportWeekly возвращает сводку по заказам за последние семь дней.
func (h *Handler) AdminReportWeekly(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.ReportWeekly(r.Context())
	if err != nil {
		h.respondError(w, err, "admin weekly report error")
		return
	}

	writeJSON(w, toReportResponse(stats))
}

// AdminReportMonthly возвращает сводку по заказам за последние тридцать дней.
func (h *Handler) AdminReportMonthly(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.ReportMonthly(r.Context())
	if err != nil {
		h.respondError(w, err, "admin monthly report error")
		return
	}

	writeJSON(w, toReportResponse(stats))
}

type topCustomerResponse struct {
	Name   string `json:"name"`
	Orders int64  `json:"orders"`
}

type userStatsResponse struct {
	Users          int64                 `json:"users"`
	TotalBalance   string                `json:"total_balance"`
	AverageBalance string                `json:"average_balance"`
	TopCustomers   []topCustomerResponse `json:"top_customers"`
}

// AdminReportUsers возвращает статистику по пользователям и самым активным покупателям.
func (h *Handler) AdminReportUsers(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.ReportUsers(r.Context())
	if err != nil {
		h.respondError(w, err, "admin user statistics error")
		return
	}

	average := decimal.Zero
	if stats.Users > 0 {
		average = stats.TotalBalance.Div(decimal.NewFromInt(stats.Users)).Round(2)
	}

	customers := make([]topCustomerResponse, 0, len(stats.TopCustomers))
	for _, c := range stats.TopCustomers {
		customers = append(customers, topCustomerResponse{Name: c.Name, Orders: c.Orders})
	}

	writeJSON(w, userStatsResponse{
		Users:          stats.Users,
		TotalBalance:   stats.TotalBalance.StringFixed(2),
		AverageBalance: average.StringFixed(2),
		TopCustomers:   customers,
	})
}
