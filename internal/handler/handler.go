// Package handler содержит HTTP-обработчики API кофейного сервиса.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/coffeevend-system/internal/gateway"
	"github.com/mmeshcher/coffeevend-system/internal/middleware"
	"github.com/mmeshcher/coffeevend-system/internal/model"
	"github.com/mmeshcher/coffeevend-system/internal/repository"
	"github.com/mmeshcher/coffeevend-system/internal/service"
	"github.com/mmeshcher/coffeevend-system/internal/status"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, name, email, password string) (int64, error)
	AuthenticateUser(ctx context.Context, email, password string) (int64, error)
	GetBalance(ctx context.Context, userID int64) (*model.Balance, error)
	TopUp(ctx context.Context, userID int64, amount decimal.Decimal) error
	GetMenu(ctx context.Context) ([]model.CoffeeItem, error)
	GetFullMenu(ctx context.Context) ([]model.CoffeeItem, error)
	AddCoffeeItem(ctx context.Context, name string, price decimal.Decimal, description string) (int64, error)
	UpdateCoffeeItem(ctx context.Context, item *model.CoffeeItem) error
	CreateOrder(ctx context.Context, userID int64, lines []service.LineRequest) (*model.Order, error)
	ProcessPayment(ctx context.Context, userID, orderID int64, method model.PaymentMethod) error
	GetOrder(ctx context.Context, userID, orderID int64) (*model.Order, error)
	GetUserOrders(ctx context.Context, userID int64) ([]model.Order, error)
	GetAllOrders(ctx context.Context) ([]model.Order, error)
	GetAllUsers(ctx context.Context) ([]model.User, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, next model.OrderStatus) error
	CancelOrder(ctx context.Context, userID, orderID int64) error
	ReportSummary(ctx context.Context) (*repository.OrderStats, error)
	ReportDaily(ctx context.Context) (*repository.OrderStats, error)
	ReportWeekly(ctx context.Context) (*repository.OrderStats, error)
	ReportMonthly(ctx context.Context) (*repository.OrderStats, error)
	ReportUsers(ctx context.Context) (*repository.UserStats, error)
	AddIngredient(ctx context.Context, name string, quantity int32, unit string, minThreshold int32) (int64, error)
	GetIngredients(ctx context.Context) ([]model.Ingredient, error)
	GetLowStockIngredients(ctx context.Context) ([]model.Ingredient, error)
	SetIngredientQuantity(ctx context.Context, ingredientID int64, quantity int32) error
}

// Handler реализует HTTP-обработчики API кофейного сервиса.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, repository.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidMenuItem),
		errors.Is(err, service.ErrInvalidIngredient):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrInsufficientBalance),
		errors.Is(err, gateway.ErrDeclined):
		return http.StatusPaymentRequired
	case errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrIngredientNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrPaymentAlreadyCompleted),
		errors.Is(err, repository.ErrOrderNotPayable),
		errors.Is(err, repository.ErrIngredientExists):
		return http.StatusConflict
	case errors.Is(err, repository.ErrCoffeeNotFound),
		errors.Is(err, service.ErrCoffeeUnavailable),
		errors.Is(err, status.ErrIllegalTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	code := statusFromError(err)
	if code == http.StatusInternalServerError {
		h.logger.Error(msg, append(fields, zap.Error(err))...)
	}
	http.Error(w, http.StatusText(code), code)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func orderIDFromURL(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Name == "" || req.Email == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.respondError(w, err, "register user error", zap.String("email", req.Email))
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(w, err, "login user error", zap.String("email", req.Email))
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

type coffeeResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Price       string `json:"price"`
	Description string `json:"description,omitempty"`
	Available   bool   `json:"available"`
}

func toCoffeeResponses(items []model.CoffeeItem) []coffeeResponse {
	resp := make([]coffeeResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, coffeeResponse{
			ID:          item.ID,
			Name:        item.Name,
			Price:       item.Price.StringFixed(2),
			Description: item.Description,
			Available:   item.Available,
		})
	}
	return resp
}

// GetMenu возвращает доступные к заказу позиции меню.
func (h *Handler) GetMenu(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.GetMenu(r.Context())
	if err != nil {
		h.respondError(w, err, "get menu error")
		return
	}

	writeJSON(w, toCoffeeResponses(items))
}

type balanceResponse struct {
	Current string `json:"current"`
}

// GetBalance возвращает баланс кошелька текущего пользователя.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	balance, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		h.respondError(w, err, "get balance error", zap.Int64("userID", userID))
		return
	}

	writeJSON(w, balanceResponse{Current: balance.Current.StringFixed(2)})
}

type topUpRequest struct {
	Sum decimal.Decimal `json:"sum"`
}

// TopUp пополняет кошелёк текущего пользователя.
func (h *Handler) TopUp(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req topUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.TopUp(r.Context(), userID, req.Sum); err != nil {
		h.respondError(w, err, "top up error", zap.Int64("userID", userID))
		return
	}

	w.WriteHeader(http.StatusOK)
}

type orderItemRequest struct {
	CoffeeID int64  `json:"coffee_id"`
	Quantity int32  `json:"quantity"`
	Size     string `json:"size"`
	Sugar    string `json:"sugar"`
	Milk     string `json:"milk"`
}

type createOrderRequest struct {
	Items []orderItemRequest `json:"items"`
}

type orderItemResponse struct {
	CoffeeID   int64  `json:"coffee_id"`
	CoffeeName string `json:"coffee_name"`
	Quantity   int32  `json:"quantity"`
	Size       string `json:"size"`
	Sugar      string `json:"sugar"`
	Milk       string `json:"milk"`
	UnitPrice  string `json:"unit_price"`
	LineTotal  string `json:"line_total"`
}

type orderResponse struct {
	ID            int64               `json:"id"`
	TotalAmount   string              `json:"total_amount"`
	PaymentStatus string              `json:"payment_status"`
	OrderStatus   string              `json:"order_status"`
	OrderedAt     string              `json:"ordered_at"`
	Items         []orderItemResponse `json:"items,omitempty"`
}

func toOrderResponse(o *model.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemResponse{
			CoffeeID:   item.CoffeeID,
			CoffeeName: item.CoffeeName,
			Quantity:   item.Quantity,
			Size:       string(item.Size),
			Sugar:      string(item.Sugar),
			Milk:       string(item.Milk),
			UnitPrice:  item.UnitPrice.StringFixed(2),
			LineTotal:  item.LineTotal.StringFixed(2),
		})
	}

	return orderResponse{
		ID:            o.ID,
		TotalAmount:   o.TotalAmount.StringFixed(2),
		PaymentStatus: string(o.PaymentStatus),
		OrderStatus:   string(o.OrderStatus),
		OrderedAt:     o.OrderedAt.Format(time.RFC3339),
		Items:         items,
	}
}

// CreateOrder принимает корзину текущего пользователя и создаёт заказ.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	lines := make([]service.LineRequest, 0, len(req.Items))
	for _, item := range req.Items {
		size, err := model.ParseSize(item.Size)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
			return
		}
		sugar, err := model.ParseLevel(item.Sugar)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
			return
		}
		milk, err := model.ParseLevel(item.Milk)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
			return
		}

		lines = append(lines, service.LineRequest{
			CoffeeID: item.CoffeeID,
			Quantity: item.Quantity,
			Size:     size,
			Sugar:    sugar,
			Milk:     milk,
		})
	}

	order, err := h.service.CreateOrder(r.Context(), userID, lines)
	if err != nil {
		h.respondError(w, err, "create order error", zap.Int64("userID", userID))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(toOrderResponse(order)); err != nil {
		h.logger.Error("encode order response", zap.Error(err))
	}
}

// GetOrders возвращает заказы текущего пользователя, новые первыми.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orders, err := h.service.GetUserOrders(r.Context(), userID)
	if err != nil {
		h.respondError(w, err, "get orders error", zap.Int64("userID", userID))
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}

	writeJSON(w, resp)
}

// GetOrder возвращает один заказ текущего пользователя вместе с позициями.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orderID, err := orderIDFromURL(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.GetOrder(r.Context(), userID, orderID)
	if err != nil {
		h.respondError(w, err, "get order error", zap.Int64("orderID", orderID))
		return
	}

	writeJSON(w, toOrderResponse(order))
}

type paymentRequest struct {
	Method string `json:"method"`
}

// Pay проводит оплату заказа текущего пользователя указанным способом.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orderID, err := orderIDFromURL(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	method, err := model.ParsePaymentMethod(req.Method)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	if err := h.service.ProcessPayment(r.Context(), userID, orderID, method); err != nil {
		// Деньги ушли через шлюз, но оплата не зафиксирована — кричим в лог,
		// такие случаи требуют ручной сверки.
		if errors.Is(err, service.ErrReconciliation) {
			h.logger.Error("payment reconciliation required",
				zap.Int64("orderID", orderID),
				zap.Int64("userID", userID),
				zap.Error(err),
			)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		h.respondError(w, err, "process payment error", zap.Int64("orderID", orderID))
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Cancel отменяет заказ текущего пользователя.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orderID, err := orderIDFromURL(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.CancelOrder(r.Context(), userID, orderID); err != nil {
		h.respondError(w, err, "cancel order error", zap.Int64("orderID", orderID))
		return
	}

	w.WriteHeader(http.StatusOK)
}
