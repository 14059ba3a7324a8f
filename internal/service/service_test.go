package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/coffeevend-system/internal/gateway"
	"github.com/mmeshcher/coffeevend-system/internal/model"
	"github.com/mmeshcher/coffeevend-system/internal/repository"
)

func TestHashPasswordDeterministic(t *testing.T) {
	a := hashPassword("user@example.com", "pass")
	b := hashPassword("user@example.com", "pass")
	c := hashPassword("user@example.com", "other")

	if string(a) != string(b) {
		t.Fatalf("hashPassword must be deterministic, got %x and %x", a, b)
	}
	if string(a) == string(c) {
		t.Fatalf("different passwords must produce different hashes")
	}
}

type stubRepo struct {
	createUserID      int64
	createUserErr     error
	createUserBalance decimal.Decimal

	getUser    *model.User
	getUserErr error

	balance    decimal.Decimal
	balanceErr error

	creditCalls  int
	creditAmount decimal.Decimal
	creditErr    error

	coffeeItems map[int64]*model.CoffeeItem

	createOrderCalls int
	createOrderErr   error
	createdOrder     *model.Order

	getOrder    *model.Order
	getOrderErr error

	settleCalls  int
	settleMethod model.PaymentMethod
	settleTxnID  string
	settleErr    error

	markFailedCalls int

	cancelErr error

	changeStatusNext model.OrderStatus
	changeStatusErr  error

	statsSince time.Time
	stats      *repository.OrderStats
	statsErr   error

	userStats    *repository.UserStats
	userStatsErr error

	createIngredientID  int64
	createIngredientErr error
	createdIngredient   *model.Ingredient

	ingredients        []model.Ingredient
	ingredientsLowOnly bool
	ingredientsErr     error

	updateIngredientID  int64
	updateIngredientQty int32
	updateIngredientErr error
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, name, email string, passwordHash []byte, balance decimal.Decimal) (int64, error) {
	s.createUserBalance = balance
	return s.createUserID, s.createUserErr
}

func (s *stubRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.getUser, s.getUserErr
}

func (s *stubRepo) GetAllUsers(ctx context.Context) ([]model.User, error) {
	return nil, nil
}

func (s *stubRepo) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return s.balance, s.balanceErr
}

func (s *stubRepo) CreditBalance(ctx context.Context, userID int64, amount decimal.Decimal) error {
	s.creditCalls++
	s.creditAmount = amount
	return s.creditErr
}

func (s *stubRepo) CreateCoffeeItem(ctx context.Context, item *model.CoffeeItem) (int64, error) {
	return 1, nil
}

func (s *stubRepo) GetCoffeeByID(ctx context.Context, coffeeID int64) (*model.CoffeeItem, error) {
	item, ok := s.coffeeItems[coffeeID]
	if !ok {
		return nil, repository.ErrCoffeeNotFound
	}
	return item, nil
}

func (s *stubRepo) GetCoffeeItems(ctx context.Context, onlyAvailable bool) ([]model.CoffeeItem, error) {
	return nil, nil
}

func (s *stubRepo) UpdateCoffeeItem(ctx context.Context, item *model.CoffeeItem) error {
	return nil
}

func (s *stubRepo) CreateOrder(ctx context.Context, order *model.Order) (int64, error) {
	s.createOrderCalls++
	if s.createOrderErr != nil {
		return 0, s.createOrderErr
	}
	order.ID = 100
	s.createdOrder = order
	return order.ID, nil
}

func (s *stubRepo) GetOrderByID(ctx context.Context, orderID int64) (*model.Order, error) {
	return s.getOrder, s.getOrderErr
}

func (s *stubRepo) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return nil, nil
}

func (s *stubRepo) GetAllOrders(ctx context.Context) ([]model.Order, error) {
	return nil, nil
}

func (s *stubRepo) ChangeOrderStatus(ctx context.Context, orderID int64, next model.OrderStatus) error {
	s.changeStatusNext = next
	return s.changeStatusErr
}

func (s *stubRepo) SettlePayment(ctx context.Context, orderID int64, method model.PaymentMethod, transactionID string) error {
	s.settleCalls++
	s.settleMethod = method
	s.settleTxnID = transactionID
	return s.settleErr
}

func (s *stubRepo) MarkPaymentFailed(ctx context.Context, orderID int64) error {
	s.markFailedCalls++
	return nil
}

func (s *stubRepo) CancelOrder(ctx context.Context, orderID, userID int64) error {
	return s.cancelErr
}

func (s *stubRepo) GetOrderStats(ctx context.Context, since time.Time) (*repository.OrderStats, error) {
	s.statsSince = since
	return s.stats, s.statsErr
}

func (s *stubRepo) GetUserStats(ctx context.Context) (*repository.UserStats, error) {
	return s.userStats, s.userStatsErr
}

func (s *stubRepo) CreateIngredient(ctx context.Context, ing *model.Ingredient) (int64, error) {
	s.createdIngredient = ing
	return s.createIngredientID, s.createIngredientErr
}

func (s *stubRepo) GetIngredients(ctx context.Context, onlyLowStock bool) ([]model.Ingredient, error) {
	s.ingredientsLowOnly = onlyLowStock
	return s.ingredients, s.ingredientsErr
}

func (s *stubRepo) UpdateIngredientQuantity(ctx context.Context, ingredientID int64, quantity int32) error {
	s.updateIngredientID = ingredientID
	s.updateIngredientQty = quantity
	return s.updateIngredientErr
}

type stubGateway struct {
	txnID string
	err   error
	calls int
}

func (g *stubGateway) Charge(ctx context.Context, orderID int64, amount decimal.Decimal, method model.PaymentMethod) (string, error) {
	g.calls++
	return g.txnID, g.err
}

func newTestService(repo *stubRepo, gw PaymentGateway) *Service {
	svc := NewService(repo, gw)
	svc.now = func() time.Time {
		return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	}
	return svc
}

func TestRegisterUser_WelcomeBonus(t *testing.T) {
	repo := &stubRepo{createUserID: 42}
	svc := newTestService(repo, nil)

	id, err := svc.RegisterUser(context.Background(), "User", "user@example.com", "pass")
	if err != nil {
		t.Fatalf("RegisterUser error: %v", err)
	}
	if id != 42 {
		t.Fatalf("user id = %d, want 42", id)
	}
	if !repo.createUserBalance.Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("welcome bonus = %s, want 10.00", repo.createUserBalance)
	}
}

func TestRegisterUser_PropagatesDuplicateError(t *testing.T) {
	repo := &stubRepo{createUserErr: repository.ErrUserExists}
	svc := newTestService(repo, nil)

	_, err := svc.RegisterUser(context.Background(), "User", "user@example.com", "pass")
	if !errors.Is(err, repository.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestAuthenticateUser_InvalidCredentials(t *testing.T) {
	hashed := hashPassword("user@example.com", "correct")
	repo := &stubRepo{
		getUser: &model.User{
			ID:           1,
			Email:        "user@example.com",
			PasswordHash: hashed,
		},
	}
	svc := newTestService(repo, nil)

	_, err := svc.AuthenticateUser(context.Background(), "user@example.com", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	id, err := svc.AuthenticateUser(context.Background(), "user@example.com", "correct")
	if err != nil {
		t.Fatalf("AuthenticateUser error: %v", err)
	}
	if id != 1 {
		t.Fatalf("user id = %d, want 1", id)
	}
}

func TestAuthenticateUser_UnknownUser(t *testing.T) {
	repo := &stubRepo{getUserErr: repository.ErrUserNotFound}
	svc := newTestService(repo, nil)

	_, err := svc.AuthenticateUser(context.Background(), "ghost@example.com", "pass")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestTopUp_Validation(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(repo, nil)

	err := svc.TopUp(context.Background(), 1, decimal.NewFromInt(-5))
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if repo.creditCalls != 0 {
		t.Fatalf("credit must not be called on validation failure")
	}

	if err := svc.TopUp(context.Background(), 1, decimal.RequireFromString("5.00")); err != nil {
		t.Fatalf("TopUp error: %v", err)
	}
	if repo.creditCalls != 1 {
		t.Fatalf("credit calls = %d, want 1", repo.creditCalls)
	}
}

func TestCreateOrder_EmptyCart(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(repo, nil)

	_, err := svc.CreateOrder(context.Background(), 1, nil)
	if !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
	if repo.createOrderCalls != 0 {
		t.Fatalf("nothing must be persisted for an empty cart")
	}
}

func TestCreateOrder_InvalidQuantity(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(repo, nil)

	_, err := svc.CreateOrder(context.Background(), 1, []LineRequest{
		{CoffeeID: 1, Quantity: 0, Size: model.SizeMedium, Sugar: model.LevelNone, Milk: model.LevelNone},
	})
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestCreateOrder_UnknownItem(t *testing.T) {
	repo := &stubRepo{coffeeItems: map[int64]*model.CoffeeItem{}}
	svc := newTestService(repo, nil)

	_, err := svc.CreateOrder(context.Background(), 1, []LineRequest{
		{CoffeeID: 99, Quantity: 1, Size: model.SizeMedium, Sugar: model.LevelNone, Milk: model.LevelNone},
	})
	if !errors.Is(err, repository.ErrCoffeeNotFound) {
		t.Fatalf("expected ErrCoffeeNotFound, got %v", err)
	}
	if repo.createOrderCalls != 0 {
		t.Fatalf("nothing must be persisted for unknown item")
	}
}

func TestCreateOrder_UnavailableItem(t *testing.T) {
	repo := &stubRepo{
		coffeeItems: map[int64]*model.CoffeeItem{
			1: {ID: 1, Name: "Espresso", Price: decimal.RequireFromString("3.00"), Available: false},
		},
	}
	svc := newTestService(repo, nil)

	_, err := svc.CreateOrder(context.Background(), 1, []LineRequest{
		{CoffeeID: 1, Quantity: 1, Size: model.SizeMedium, Sugar: model.LevelNone, Milk: model.LevelNone},
	})
	if !errors.Is(err, ErrCoffeeUnavailable) {
		t.Fatalf("expected ErrCoffeeUnavailable, got %v", err)
	}
}

func TestCreateOrder_InsufficientBalance(t *testing.T) {
	repo := &stubRepo{
		balance: decimal.RequireFromString("2.00"),
		coffeeItems: map[int64]*model.CoffeeItem{
			1: {ID: 1, Name: "Latte", Price: decimal.RequireFromString("3.00"), Available: true},
		},
	}
	svc := newTestService(repo, nil)

	// 3.00 * 1.3 + 0.25 + 0.50 = 4.65 > 2.00
	_, err := svc.CreateOrder(context.Background(), 1, []LineRequest{
		{CoffeeID: 1, Quantity: 1, Size: model.SizeLarge, Sugar: model.LevelHigh, Milk: model.LevelHigh},
	})
	if !errors.Is(err, repository.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if repo.createOrderCalls != 0 {
		t.Fatalf("nothing must be persisted on insufficient balance")
	}
}

func TestCreateOrder_Success(t *testing.T) {
	repo := &stubRepo{
		balance: decimal.RequireFromString("10.00"),
		coffeeItems: map[int64]*model.CoffeeItem{
			1: {ID: 1, Name: "Americano", Price: decimal.RequireFromString("3.00"), Available: true},
		},
	}
	svc := newTestService(repo, nil)

	order, err := svc.CreateOrder(context.Background(), 7, []LineRequest{
		{CoffeeID: 1, Quantity: 1, Size: model.SizeMedium, Sugar: model.LevelNone, Milk: model.LevelNone},
	})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}

	if order.ID != 100 {
		t.Fatalf("order id = %d, want 100", order.ID)
	}
	if order.PaymentStatus != model.PaymentStatusPending {
		t.Fatalf("payment status = %s, want PENDING", order.PaymentStatus)
	}
	if order.OrderStatus != model.OrderStatusPlaced {
		t.Fatalf("order status = %s, want PLACED", order.OrderStatus)
	}
	if !order.TotalAmount.Equal(decimal.RequireFromString("3.00")) {
		t.Fatalf("total = %s, want 3.00", order.TotalAmount)
	}
	if !order.OrderedAt.Equal(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("ordered at = %v, clock was not used", order.OrderedAt)
	}
}

func TestCreateOrder_TotalIsExactSumOfLines(t *testing.T) {
	repo := &stubRepo{
		balance: decimal.RequireFromString("100.00"),
		coffeeItems: map[int64]*model.CoffeeItem{
			1: {ID: 1, Name: "Mocha", Price: decimal.RequireFromString("2.99"), Available: true},
			2: {ID: 2, Name: "Flat White", Price: decimal.RequireFromString("3.75"), Available: true},
		},
	}
	svc := newTestService(repo, nil)

	order, err := svc.CreateOrder(context.Background(), 7, []LineRequest{
		// 2.99 * 1.3 = 3.887 -> 3.89 за единицу, 3 шт = 11.67
		{CoffeeID: 1, Quantity: 3, Size: model.SizeLarge, Sugar: model.LevelNone, Milk: model.LevelNone},
		// 3.75 * 0.8 = 3.00 за единицу, 2 шт = 6.00
		{CoffeeID: 2, Quantity: 2, Size: model.SizeSmall, Sugar: model.LevelMedium, Milk: model.LevelLow},
	})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}

	sum := decimal.Zero
	for _, item := range order.Items {
		if !item.LineTotal.Equal(item.UnitPrice.Mul(decimal.NewFromInt32(item.Quantity))) {
			t.Fatalf("line total %s != unit %s * qty %d", item.LineTotal, item.UnitPrice, item.Quantity)
		}
		sum = sum.Add(item.LineTotal)
	}
	if !order.TotalAmount.Equal(sum) {
		t.Fatalf("total %s != sum of lines %s", order.TotalAmount, sum)
	}
	if !order.TotalAmount.Equal(decimal.RequireFromString("17.67")) {
		t.Fatalf("total = %s, want 17.67", order.TotalAmount)
	}
}

func pendingOrder(userID int64, total string) *model.Order {
	return &model.Order{
		ID:            100,
		UserID:        userID,
		TotalAmount:   decimal.RequireFromString(total),
		PaymentStatus: model.PaymentStatusPending,
		OrderStatus:   model.OrderStatusPlaced,
	}
}

func TestProcessPayment_Wallet(t *testing.T) {
	repo := &stubRepo{getOrder: pendingOrder(7, "3.00")}
	svc := newTestService(repo, nil)

	if err := svc.ProcessPayment(context.Background(), 7, 100, model.PaymentMethodWallet); err != nil {
		t.Fatalf("ProcessPayment error: %v", err)
	}
	if repo.settleCalls != 1 {
		t.Fatalf("settle calls = %d, want 1", repo.settleCalls)
	}
	if repo.settleMethod != model.PaymentMethodWallet {
		t.Fatalf("settle method = %s, want WALLET", repo.settleMethod)
	}
	if repo.settleTxnID != "" {
		t.Fatalf("wallet payment must not carry a gateway transaction id")
	}
}

func TestProcessPayment_OrderNotFound(t *testing.T) {
	repo := &stubRepo{getOrderErr: repository.ErrOrderNotFound}
	svc := newTestService(repo, nil)

	err := svc.ProcessPayment(context.Background(), 7, 100, model.PaymentMethodWallet)
	if !errors.Is(err, repository.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestProcessPayment_ForeignOrderHidden(t *testing.T) {
	repo := &stubRepo{getOrder: pendingOrder(1, "3.00")}
	svc := newTestService(repo, nil)

	err := svc.ProcessPayment(context.Background(), 7, 100, model.PaymentMethodWallet)
	if !errors.Is(err, repository.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for foreign order, got %v", err)
	}
	if repo.settleCalls != 0 {
		t.Fatalf("settle must not be called for foreign order")
	}
}

func TestProcessPayment_AlreadyCompleted(t *testing.T) {
	order := pendingOrder(7, "3.00")
	order.PaymentStatus = model.PaymentStatusCompleted
	order.OrderStatus = model.OrderStatusPreparing

	repo := &stubRepo{getOrder: order}
	gw := &stubGateway{txnID: "txn-1"}
	svc := newTestService(repo, gw)

	err := svc.ProcessPayment(context.Background(), 7, 100, model.PaymentMethodCard)
	if !errors.Is(err, repository.ErrPaymentAlreadyCompleted) {
		t.Fatalf("expected ErrPaymentAlreadyCompleted, got %v", err)
	}
	if gw.calls != 0 {
		t.Fatalf("gateway must not be charged twice")
	}
	if repo.settleCalls != 0 {
		t.Fatalf("settle must not run for a completed payment")
	}
}

func TestProcessPayment_GatewayNotConfigured(t *testing.T) {
	repo := &stubRepo{getOrder: pendingOrder(7, "3.00")}
	svc := newTestService(repo, nil)

	err := svc.ProcessPayment(context.Background(), 7, 100, model.PaymentMethodCard)
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}

func TestProcessPayment_GatewayDeclined(t *testing.T) {
	repo := &stubRepo{getOrder: pendingOrder(7, "3.00")}
	gw := &stubGateway{err: gateway.ErrDeclined}
	svc := newTestService(repo, gw)

	err := svc.ProcessPayment(context.Background(), 7, 100, model.PaymentMethodCard)
	if !errors.Is(err, gateway.ErrDeclined) {
		t.Fatalf("expected ErrDeclined, got %v", err)
	}
	if repo.markFailedCalls != 1 {
		t.Fatalf("declined charge must mark the payment failed")
	}
	if repo.settleCalls != 0 {
		t.Fatalf("settle must not run after a declined charge")
	}
}

func TestProcessPayment_ReconciliationError(t *testing.T) {
	repo := &stubRepo{
		getOrder:  pendingOrder(7, "3.00"),
		settleErr: errors.New("connection lost"),
	}
	gw := &stubGateway{txnID: "txn-9"}
	svc := newTestService(repo, gw)

	err := svc.ProcessPayment(context.Background(), 7, 100, model.PaymentMethodUPI)
	if !errors.Is(err, ErrReconciliation) {
		t.Fatalf("expected ErrReconciliation, got %v", err)
	}
}

func TestProcessPayment_LostRaceAfterChargeIsReconciliation(t *testing.T) {
	// Две одновременные оплаты проходят быстрый предчек по одному и тому же
	// PENDING-заказу и обе списывают через шлюз; проигравшая фиксацию получает
	// ErrPaymentAlreadyCompleted от хранилища, а её транзакция шлюза остаётся
	// без записи об оплате. Такая ошибка обязана всплыть как сверка.
	repo := &stubRepo{
		getOrder:  pendingOrder(7, "3.00"),
		settleErr: repository.ErrPaymentAlreadyCompleted,
	}
	gw := &stubGateway{txnID: "txn-10"}
	svc := newTestService(repo, gw)

	err := svc.ProcessPayment(context.Background(), 7, 100, model.PaymentMethodCard)
	if !errors.Is(err, ErrReconciliation) {
		t.Fatalf("expected ErrReconciliation for a charged but unrecorded payment, got %v", err)
	}
	if !strings.Contains(err.Error(), "txn-10") {
		t.Fatalf("reconciliation error must name the gateway transaction, got %v", err)
	}
}

func TestProcessPayment_WalletSettleFailureIsNotReconciliation(t *testing.T) {
	repo := &stubRepo{
		getOrder:  pendingOrder(7, "3.00"),
		settleErr: repository.ErrInsufficientBalance,
	}
	svc := newTestService(repo, nil)

	err := svc.ProcessPayment(context.Background(), 7, 100, model.PaymentMethodWallet)
	if !errors.Is(err, repository.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if errors.Is(err, ErrReconciliation) {
		t.Fatalf("wallet settlement rolls back atomically, no reconciliation expected")
	}
}

func TestGetOrder_ForeignOrderHidden(t *testing.T) {
	repo := &stubRepo{getOrder: pendingOrder(1, "3.00")}
	svc := newTestService(repo, nil)

	_, err := svc.GetOrder(context.Background(), 7, 100)
	if !errors.Is(err, repository.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for foreign order, got %v", err)
	}
}

func TestReportDaily_UsesStartOfDay(t *testing.T) {
	repo := &stubRepo{stats: &repository.OrderStats{}}
	svc := newTestService(repo, nil)

	if _, err := svc.ReportDaily(context.Background()); err != nil {
		t.Fatalf("ReportDaily error: %v", err)
	}

	want := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	if !repo.statsSince.Equal(want) {
		t.Fatalf("since = %v, want %v", repo.statsSince, want)
	}
}

func TestReportMonthly_Uses30DayWindow(t *testing.T) {
	repo := &stubRepo{stats: &repository.OrderStats{}}
	svc := newTestService(repo, nil)

	if _, err := svc.ReportMonthly(context.Background()); err != nil {
		t.Fatalf("ReportMonthly error: %v", err)
	}

	want := time.Date(2025, 5, 16, 12, 0, 0, 0, time.UTC)
	if !repo.statsSince.Equal(want) {
		t.Fatalf("since = %v, want %v", repo.statsSince, want)
	}
}

func TestAddCoffeeItem_Validation(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(repo, nil)

	if _, err := svc.AddCoffeeItem(context.Background(), "  ", decimal.NewFromInt(3), ""); !errors.Is(err, ErrInvalidMenuItem) {
		t.Fatalf("expected ErrInvalidMenuItem for empty name, got %v", err)
	}
	if _, err := svc.AddCoffeeItem(context.Background(), "Espresso", decimal.Zero, ""); !errors.Is(err, ErrInvalidMenuItem) {
		t.Fatalf("expected ErrInvalidMenuItem for zero price, got %v", err)
	}
}

func TestAddIngredient_Validation(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(repo, nil)

	if _, err := svc.AddIngredient(context.Background(), "  ", 10, "g", 5); !errors.Is(err, ErrInvalidIngredient) {
		t.Fatalf("expected ErrInvalidIngredient for empty name, got %v", err)
	}
	if _, err := svc.AddIngredient(context.Background(), "Coffee Beans", 10, "", 5); !errors.Is(err, ErrInvalidIngredient) {
		t.Fatalf("expected ErrInvalidIngredient for empty unit, got %v", err)
	}
	if _, err := svc.AddIngredient(context.Background(), "Coffee Beans", -1, "g", 5); !errors.Is(err, ErrInvalidIngredient) {
		t.Fatalf("expected ErrInvalidIngredient for negative quantity, got %v", err)
	}
}

func TestAddIngredient_TrimsFields(t *testing.T) {
	repo := &stubRepo{createIngredientID: 3}
	svc := newTestService(repo, nil)

	id, err := svc.AddIngredient(context.Background(), "  Milk ", 2000, " ml ", 500)
	if err != nil {
		t.Fatalf("AddIngredient error: %v", err)
	}
	if id != 3 {
		t.Fatalf("ingredient id = %d, want 3", id)
	}
	if repo.createdIngredient.Name != "Milk" || repo.createdIngredient.Unit != "ml" {
		t.Fatalf("fields not trimmed: %+v", repo.createdIngredient)
	}
}

func TestSetIngredientQuantity_Validation(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(repo, nil)

	if err := svc.SetIngredientQuantity(context.Background(), 0, 10); !errors.Is(err, ErrInvalidIngredient) {
		t.Fatalf("expected ErrInvalidIngredient for zero id, got %v", err)
	}
	if err := svc.SetIngredientQuantity(context.Background(), 1, -1); !errors.Is(err, ErrInvalidIngredient) {
		t.Fatalf("expected ErrInvalidIngredient for negative quantity, got %v", err)
	}
	if err := svc.SetIngredientQuantity(context.Background(), 1, 0); err != nil {
		t.Fatalf("zero quantity must be allowed, got %v", err)
	}
	if repo.updateIngredientID != 1 || repo.updateIngredientQty != 0 {
		t.Fatalf("update not forwarded: id=%d qty=%d", repo.updateIngredientID, repo.updateIngredientQty)
	}
}

func TestGetLowStockIngredients_FiltersInStorage(t *testing.T) {
	repo := &stubRepo{ingredients: []model.Ingredient{{Name: "Sugar", Quantity: 100, MinThreshold: 500}}}
	svc := newTestService(repo, nil)

	items, err := svc.GetLowStockIngredients(context.Background())
	if err != nil {
		t.Fatalf("GetLowStockIngredients error: %v", err)
	}
	if !repo.ingredientsLowOnly {
		t.Fatalf("low-stock listing must query only low-stock rows")
	}
	if len(items) != 1 || !items[0].LowStock() {
		t.Fatalf("unexpected low-stock result: %+v", items)
	}
}
