// Package service реализует бизнес-логику кофейного сервиса.
package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/coffeevend-system/internal/gateway"
	"github.com/mmeshcher/coffeevend-system/internal/model"
	"github.com/mmeshcher/coffeevend-system/internal/pricing"
	"github.com/mmeshcher/coffeevend-system/internal/repository"
	"github.com/mmeshcher/coffeevend-system/internal/status"
)

// ErrEmptyCart возвращается при попытке создать заказ без позиций.
var (
	ErrEmptyCart = errors.New("order must contain at least one item")
	// ErrInvalidQuantity возвращается при неположительном количестве в позиции.
	ErrInvalidQuantity = errors.New("item quantity must be positive")
	// ErrInvalidAmount возвращается при неположительной сумме пополнения.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrCoffeeUnavailable возвращается при заказе недоступной позиции меню.
	ErrCoffeeUnavailable = errors.New("coffee item is unavailable")
	// ErrInvalidMenuItem возвращается при некорректных данных позиции меню.
	ErrInvalidMenuItem = errors.New("invalid menu item")
	// ErrInvalidIngredient возвращается при некорректных данных складской позиции.
	ErrInvalidIngredient = errors.New("invalid ingredient")
	// ErrInvalidCredentials возвращается при неверном email или пароле.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrGatewayUnavailable возвращается при безналичной оплате без настроенного шлюза.
	ErrGatewayUnavailable = errors.New("payment gateway is not configured")
	// ErrReconciliation возвращается, если шлюз списал деньги, а локальная
	// фиксация оплаты не удалась. Деньги уже ушли — ошибка не должна глотаться.
	ErrReconciliation = errors.New("payment reconciliation required")
)

// Каждому новому пользователю начисляется приветственный бонус на кошелёк.
var welcomeBonus = decimal.RequireFromString("10.00")

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, name, email string, passwordHash []byte, balance decimal.Decimal) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetAllUsers(ctx context.Context) ([]model.User, error)
	GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error)
	CreditBalance(ctx context.Context, userID int64, amount decimal.Decimal) error
	CreateCoffeeItem(ctx context.Context, item *model.CoffeeItem) (int64, error)
	GetCoffeeByID(ctx context.Context, coffeeID int64) (*model.CoffeeItem, error)
	GetCoffeeItems(ctx context.Context, onlyAvailable bool) ([]model.CoffeeItem, error)
	UpdateCoffeeItem(ctx context.Context, item *model.CoffeeItem) error
	CreateOrder(ctx context.Context, order *model.Order) (int64, error)
	GetOrderByID(ctx context.Context, orderID int64) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	GetAllOrders(ctx context.Context) ([]model.Order, error)
	ChangeOrderStatus(ctx context.Context, orderID int64, next model.OrderStatus) error
	SettlePayment(ctx context.Context, orderID int64, method model.PaymentMethod, transactionID string) error
	MarkPaymentFailed(ctx context.Context, orderID int64) error
	CancelOrder(ctx context.Context, orderID, userID int64) error
	GetOrderStats(ctx context.Context, since time.Time) (*repository.OrderStats, error)
	GetUserStats(ctx context.Context) (*repository.UserStats, error)
	CreateIngredient(ctx context.Context, ing *model.Ingredient) (int64, error)
	GetIngredients(ctx context.Context, onlyLowStock bool) ([]model.Ingredient, error)
	UpdateIngredientQuantity(ctx context.Context, ingredientID int64, quantity int32) error
}

// PaymentGateway описывает контракт внешнего платёжного шлюза.
type PaymentGateway interface {
	Charge(ctx context.Context, orderID int64, amount decimal.Decimal, method model.PaymentMethod) (string, error)
}

// LineRequest описывает запрошенную позицию заказа до расчёта цены.
type LineRequest struct {
	CoffeeID int64
	Quantity int32
	Size     model.Size
	Sugar    model.Level
	Milk     model.Level
}

// Service содержит бизнес-логику кофейного сервиса.
type Service struct {
	repo    Repository
	gateway PaymentGateway
	now     func() time.Time
}

// NewService создаёт новый сервис с указанным репозиторием и платёжным шлюзом.
// Шлюз может быть nil, тогда доступны только оплата кошельком и наличными.
func NewService(repo Repository, gw PaymentGateway) *Service {
	return &Service{
		repo:    repo,
		gateway: gw,
		now:     time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя с приветственным бонусом на кошельке.
func (s *Service) RegisterUser(ctx context.Context, name, email, password string) (int64, error) {
	hashed := hashPassword(email, password)
	id, err := s.repo.CreateUser(ctx, name, email, hashed, welcomeBonus)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет email и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (int64, error) {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, ErrInvalidCredentials
		}
		return 0, err
	}

	hashed := hashPassword(email, password)
	if subtle.ConstantTimeCompare(hashed, u.PasswordHash) != 1 {
		return 0, ErrInvalidCredentials
	}

	return u.ID, nil
}

func hashPassword(email, password string) []byte {
	sum := sha256.Sum256([]byte(email + ":" + password))
	return sum[:]
}

// GetBalance возвращает баланс кошелька пользователя.
func (s *Service) GetBalance(ctx context.Context, userID int64) (*model.Balance, error) {
	current, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &model.Balance{Current: current}, nil
}

// TopUp пополняет кошелёк пользователя на указанную сумму.
func (s *Service) TopUp(ctx context.Context, userID int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return s.repo.CreditBalance(ctx, userID, amount.Round(2))
}

// GetMenu возвращает доступные к заказу позиции меню.
func (s *Service) GetMenu(ctx context.Context) ([]model.CoffeeItem, error) {
	return s.repo.GetCoffeeItems(ctx, true)
}

// GetFullMenu возвращает все позиции меню, включая недоступные.
func (s *Service) GetFullMenu(ctx context.Context) ([]model.CoffeeItem, error) {
	return s.repo.GetCoffeeItems(ctx, false)
}

// AddCoffeeItem добавляет позицию меню.
func (s *Service) AddCoffeeItem(ctx context.Context, name string, price decimal.Decimal, description string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("%w: empty name", ErrInvalidMenuItem)
	}
	if !price.IsPositive() {
		return 0, fmt.Errorf("%w: price must be positive", ErrInvalidMenuItem)
	}

	return s.repo.CreateCoffeeItem(ctx, &model.CoffeeItem{
		Name:        name,
		Price:       price.Round(2),
		Description: description,
		Available:   true,
	})
}

// UpdateCoffeeItem обновляет позицию меню, включая флаг доступности.
func (s *Service) UpdateCoffeeItem(ctx context.Context, item *model.CoffeeItem) error {
	item.Name = strings.TrimSpace(item.Name)
	if item.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidMenuItem)
	}
	if !item.Price.IsPositive() {
		return fmt.Errorf("%w: price must be positive", ErrInvalidMenuItem)
	}
	item.Price = item.Price.Round(2)

	return s.repo.UpdateCoffeeItem(ctx, item)
}

// AddIngredient добавляет складскую позицию ингредиента.
func (s *Service) AddIngredient(ctx context.Context, name string, quantity int32, unit string, minThreshold int32) (int64, error) {
	name = strings.TrimSpace(name)
	unit = strings.TrimSpace(unit)
	if name == "" {
		return 0, fmt.Errorf("%w: empty name", ErrInvalidIngredient)
	}
	if unit == "" {
		return 0, fmt.Errorf("%w: empty unit", ErrInvalidIngredient)
	}
	if quantity < 0 || minThreshold < 0 {
		return 0, fmt.Errorf("%w: negative quantity or threshold", ErrInvalidIngredient)
	}

	return s.repo.CreateIngredient(ctx, &model.Ingredient{
		Name:         name,
		Quantity:     quantity,
		Unit:         unit,
		MinThreshold: minThreshold,
	})
}

// GetIngredients возвращает все складские позиции.
func (s *Service) GetIngredients(ctx context.Context) ([]model.Ingredient, error) {
	return s.repo.GetIngredients(ctx, false)
}

// GetLowStockIngredients возвращает позиции, запас которых на пороге или ниже.
func (s *Service) GetLowStockIngredients(ctx context.Context) ([]model.Ingredient, error) {
	return s.repo.GetIngredients(ctx, true)
}

// SetIngredientQuantity выставляет остаток ингредиента. Остаток может быть
// нулевым, но не отрицательным.
func (s *Service) SetIngredientQuantity(ctx context.Context, ingredientID int64, quantity int32) error {
	if ingredientID <= 0 || quantity < 0 {
		return fmt.Errorf("%w: id=%d, quantity=%d", ErrInvalidIngredient, ingredientID, quantity)
	}
	return s.repo.UpdateIngredientQuantity(ctx, ingredientID, quantity)
}

// CreateOrder рассчитывает стоимость запрошенных позиций, проверяет баланс и
// атомарно сохраняет заказ. Кошелёк на этом шаге не списывается — только
// проверяется; итоговая сумма всегда равна точной сумме позиций.
func (s *Service) CreateOrder(ctx context.Context, userID int64, lines []LineRequest) (*model.Order, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	items := make([]model.OrderItem, 0, len(lines))
	total := decimal.Zero

	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, fmt.Errorf("%w: coffee %d", ErrInvalidQuantity, line.CoffeeID)
		}

		coffee, err := s.repo.GetCoffeeByID(ctx, line.CoffeeID)
		if err != nil {
			return nil, err
		}
		if !coffee.Available {
			return nil, fmt.Errorf("%w: %s", ErrCoffeeUnavailable, coffee.Name)
		}

		// Округление до копеек выполняется один раз, при формировании позиции;
		// дальше все суммы считаются точно.
		unitPrice := pricing.UnitPrice(coffee.Price, line.Size, line.Sugar, line.Milk).Round(2)
		lineTotal := unitPrice.Mul(decimal.NewFromInt32(line.Quantity))

		items = append(items, model.OrderItem{
			CoffeeID:   coffee.ID,
			CoffeeName: coffee.Name,
			Quantity:   line.Quantity,
			Size:       line.Size,
			Sugar:      line.Sugar,
			Milk:       line.Milk,
			UnitPrice:  unitPrice,
			LineTotal:  lineTotal,
		})
		total = total.Add(lineTotal)
	}

	balance, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(total) {
		return nil, fmt.Errorf("%w: need %s, have %s", repository.ErrInsufficientBalance, total.StringFixed(2), balance.StringFixed(2))
	}

	order := &model.Order{
		UserID:        userID,
		TotalAmount:   total,
		PaymentStatus: model.PaymentStatusPending,
		OrderStatus:   model.OrderStatusPlaced,
		OrderedAt:     s.now(),
		Items:         items,
	}

	if _, err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	return order, nil
}

// ProcessPayment проводит оплату заказа указанным способом. Оплата кошельком
// списывает баланс и двигает статусы в одной транзакции хранилища; безналичные
// способы сначала проводят списание через шлюз, затем фиксируют его локально.
// Повторная оплата уже оплаченного заказа отклоняется без списаний.
func (s *Service) ProcessPayment(ctx context.Context, userID, orderID int64, method model.PaymentMethod) error {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if userID > 0 && order.UserID != userID {
		return repository.ErrOrderNotFound
	}
	if !status.CanTransitionPayment(order.PaymentStatus, model.PaymentStatusCompleted) {
		return fmt.Errorf("%w: order %d", repository.ErrPaymentAlreadyCompleted, orderID)
	}

	var transactionID string
	if method == model.PaymentMethodCard || method == model.PaymentMethodUPI {
		if s.gateway == nil {
			return ErrGatewayUnavailable
		}

		transactionID, err = s.gateway.Charge(ctx, order.ID, order.TotalAmount, method)
		if err != nil {
			if errors.Is(err, gateway.ErrDeclined) {
				// Отказ шлюза фиксируем, заказ остаётся доступным для повторной оплаты.
				_ = s.repo.MarkPaymentFailed(ctx, orderID)
			}
			return err
		}
	}

	if err := s.repo.SettlePayment(ctx, orderID, method, transactionID); err != nil {
		if transactionID != "" {
			// Деньги списаны шлюзом, но оплата не зафиксирована локально. Сюда
			// попадает и гонка двух одновременных оплат: обе проходят быстрый
			// предчек выше, обе списывают через шлюз, вторая упирается в
			// блокировку строки заказа — её транзакция шлюза осталась без
			// записи об оплате и требует ручной сверки.
			return fmt.Errorf("%w: order %d, gateway transaction %s: %w", ErrReconciliation, orderID, transactionID, err)
		}
		return err
	}

	return nil
}

// GetOrder возвращает заказ с позициями. При userID > 0 чужие заказы не видны.
func (s *Service) GetOrder(ctx context.Context, userID, orderID int64) (*model.Order, error) {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if userID > 0 && order.UserID != userID {
		return nil, repository.ErrOrderNotFound
	}
	return order, nil
}

// GetUserOrders возвращает заказы пользователя, новые первыми.
func (s *Service) GetUserOrders(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.repo.GetOrdersByUser(ctx, userID)
}

// GetAllOrders возвращает все заказы для административного просмотра.
func (s *Service) GetAllOrders(ctx context.Context) ([]model.Order, error) {
	return s.repo.GetAllOrders(ctx)
}

// GetAllUsers возвращает всех пользователей для административного просмотра.
func (s *Service) GetAllUsers(ctx context.Context) ([]model.User, error) {
	return s.repo.GetAllUsers(ctx)
}

// UpdateOrderStatus переводит заказ в новый статус через таблицу допустимых переходов.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID int64, next model.OrderStatus) error {
	return s.repo.ChangeOrderStatus(ctx, orderID, next)
}

// CancelOrder отменяет заказ пользователя; завершённая оплата возвращается на кошелёк.
func (s *Service) CancelOrder(ctx context.Context, userID, orderID int64) error {
	return s.repo.CancelOrder(ctx, orderID, userID)
}

// ReportSummary возвращает агрегаты по всем заказам.
func (s *Service) ReportSummary(ctx context.Context) (*repository.OrderStats, error) {
	return s.repo.GetOrderStats(ctx, time.Time{})
}

// ReportDaily возвращает агрегаты по заказам с начала текущих суток.
func (s *Service) ReportDaily(ctx context.Context) (*repository.OrderStats, error) {
	now := s.now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return s.repo.GetOrderStats(ctx, startOfDay)
}

// ReportWeekly возвращает агрегаты по заказам за последние семь дней.
func (s *Service) ReportWeekly(ctx context.Context) (*repository.OrderStats, error) {
	return s.repo.GetOrderStats(ctx, s.now().AddDate(0, 0, -7))
}

// ReportMonthly возвращает агрегаты по заказам за последние тридцать дней.
func (s *Service) ReportMonthly(ctx context.Context) (*repository.OrderStats, error) {
	return s.repo.GetOrderStats(ctx, s.now().AddDate(0, 0, -30))
}

// ReportUsers возвращает агрегаты по пользователям и самым активным покупателям.
func (s *Service) ReportUsers(ctx context.Context) (*repository.UserStats, error) {
	return s.repo.GetUserStats(ctx)
}
