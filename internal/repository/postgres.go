// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/coffeevend-system/internal/model"
	"github.com/mmeshcher/coffeevend-system/internal/status"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке зарегистрировать уже занятый email.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrCoffeeNotFound возвращается, если позиция меню не найдена.
	ErrCoffeeNotFound = errors.New("coffee item not found")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrInsufficientBalance возвращается при попытке списания суммы, превышающей баланс.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrPaymentAlreadyCompleted возвращается при повторной оплате заказа.
	ErrPaymentAlreadyCompleted = errors.New("payment already completed")
	// ErrOrderNotPayable возвращается при оплате отменённого заказа.
	ErrOrderNotPayable = errors.New("order is not payable")
	// ErrIngredientExists возвращается при добавлении ингредиента с занятым именем.
	ErrIngredientExists = errors.New("ingredient already exists")
	// ErrIngredientNotFound возвращается, если ингредиент не найден.
	ErrIngredientNotFound = errors.New("ingredient not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Если ошибка контекста — выходим сразу
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			// Ретраи полезны для Serialization Failure и Deadlocks.
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Денежные колонки читаются через ::text и разбираются без float-преобразований.
func parseMoney(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse money value %q: %w", s, err)
	}
	return d, nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя со стартовым балансом кошелька.
func (r *PostgresRepository) CreateUser(ctx context.Context, name, email string, passwordHash []byte, balance decimal.Decimal) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (name, email, password_hash, balance) VALUES ($1, $2, $3, $4) RETURNING id`,
		name, email, passwordHash, balance.StringFixed(2),
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, email)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByEmail возвращает пользователя по email.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, balance::text, created_at FROM users WHERE email = $1`,
		email,
	)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u       model.User
		balance string
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &balance, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if u.Balance, err = parseMoney(balance); err != nil {
		return nil, err
	}

	return &u, nil
}

// GetAllUsers возвращает список всех пользователей для административного просмотра.
func (r *PostgresRepository) GetAllUsers(ctx context.Context) ([]model.User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, email, password_hash, balance::text, created_at FROM users ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var (
			u       model.User
			balance string
		)
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &balance, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		if u.Balance, err = parseMoney(balance); err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return users, nil
}

// GetBalance возвращает текущий баланс кошелька пользователя.
func (r *PostgresRepository) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var balance string
	err := r.pool.QueryRow(ctx,
		`SELECT balance::text FROM users WHERE id = $1`,
		userID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrUserNotFound
		}
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	return parseMoney(balance)
}

// CreditBalance пополняет баланс пользователя на указанную сумму.
func (r *PostgresRepository) CreditBalance(ctx context.Context, userID int64, amount decimal.Decimal) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE users SET balance = balance + $2 WHERE id = $1`,
		userID, amount.StringFixed(2),
	)
	if err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CreateCoffeeItem добавляет позицию меню.
func (r *PostgresRepository) CreateCoffeeItem(ctx context.Context, item *model.CoffeeItem) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO coffee_menu (name, price, description, available) VALUES ($1, $2, $3, $4) RETURNING id`,
		item.Name, item.Price.StringFixed(2), item.Description, item.Available,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create coffee item: %w", err)
	}
	return id, nil
}

// GetCoffeeByID возвращает позицию меню по идентификатору.
func (r *PostgresRepository) GetCoffeeByID(ctx context.Context, coffeeID int64) (*model.CoffeeItem, error) {
	var (
		item  model.CoffeeItem
		price string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, price::text, description, available, created_at FROM coffee_menu WHERE id = $1`,
		coffeeID,
	).Scan(&item.ID, &item.Name, &price, &item.Description, &item.Available, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: id=%d", ErrCoffeeNotFound, coffeeID)
		}
		return nil, fmt.Errorf("get coffee item: %w", err)
	}

	if item.Price, err = parseMoney(price); err != nil {
		return nil, err
	}

	return &item, nil
}

// GetCoffeeItems возвращает позиции меню, отсортированные по имени.
// При onlyAvailable возвращаются только доступные к заказу позиции.
func (r *PostgresRepository) GetCoffeeItems(ctx context.Context, onlyAvailable bool) ([]model.CoffeeItem, error) {
	query := `SELECT id, name, price::text, description, available, created_at FROM coffee_menu ORDER BY name`
	if onlyAvailable {
		query = `SELECT id, name, price::text, description, available, created_at FROM coffee_menu WHERE available ORDER BY name`
	}

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select coffee items: %w", err)
	}
	defer rows.Close()

	var items []model.CoffeeItem
	for rows.Next() {
		var (
			item  model.CoffeeItem
			price string
		)
		if err := rows.Scan(&item.ID, &item.Name, &price, &item.Description, &item.Available, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan coffee item: %w", err)
		}
		if item.Price, err = parseMoney(price); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// UpdateCoffeeItem обновляет позицию меню целиком, включая флаг доступности.
func (r *PostgresRepository) UpdateCoffeeItem(ctx context.Context, item *model.CoffeeItem) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE coffee_menu SET name = $2, price = $3, description = $4, available = $5 WHERE id = $1`,
		item.ID, item.Name, item.Price.StringFixed(2), item.Description, item.Available,
	)
	if err != nil {
		return fmt.Errorf("update coffee item: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id=%d", ErrCoffeeNotFound, item.ID)
	}
	return nil
}

// CreateIngredient добавляет складскую позицию ингредиента.
func (r *PostgresRepository) CreateIngredient(ctx context.Context, ing *model.Ingredient) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO ingredients (name, quantity, unit, min_threshold) VALUES ($1, $2, $3, $4) RETURNING id`,
		ing.Name, ing.Quantity, ing.Unit, ing.MinThreshold,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrIngredientExists, ing.Name)
		}
		return 0, fmt.Errorf("create ingredient: %w", err)
	}
	return id, nil
}

// GetIngredients возвращает складские позиции, отсортированные по имени.
// При onlyLowStock возвращаются только позиции на пороге запаса или ниже.
func (r *PostgresRepository) GetIngredients(ctx context.Context, onlyLowStock bool) ([]model.Ingredient, error) {
	query := `SELECT id, name, quantity, unit, min_threshold, updated_at FROM ingredients ORDER BY name`
	if onlyLowStock {
		query = `SELECT id, name, quantity, unit, min_threshold, updated_at FROM ingredients WHERE quantity <= min_threshold ORDER BY name`
	}

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select ingredients: %w", err)
	}
	defer rows.Close()

	var ingredients []model.Ingredient
	for rows.Next() {
		var ing model.Ingredient
		if err := rows.Scan(&ing.ID, &ing.Name, &ing.Quantity, &ing.Unit, &ing.MinThreshold, &ing.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan ingredient: %w", err)
		}
		ingredients = append(ingredients, ing)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ingredients, nil
}

// UpdateIngredientQuantity выставляет остаток ингредиента.
func (r *PostgresRepository) UpdateIngredientQuantity(ctx context.Context, ingredientID int64, quantity int32) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE ingredients SET quantity = $2, updated_at = now() WHERE id = $1`,
		ingredientID, quantity,
	)
	if err != nil {
		return fmt.Errorf("update ingredient quantity: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id=%d", ErrIngredientNotFound, ingredientID)
	}
	return nil
}

// CreateOrder сохраняет заголовок заказа и все его позиции в одной транзакции.
// При ошибке вставки любой позиции транзакция откатывается целиком.
func (r *PostgresRepository) CreateOrder(ctx context.Context, order *model.Order) (int64, error) {
	var orderID int64

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		err = tx.QueryRow(ctx,
			`INSERT INTO orders (user_id, total_amount, payment_status, order_status, ordered_at)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			order.UserID,
			order.TotalAmount.StringFixed(2),
			string(order.PaymentStatus),
			string(order.OrderStatus),
			order.OrderedAt,
		).Scan(&orderID)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for i := range order.Items {
			item := &order.Items[i]
			item.OrderID = orderID

			err = tx.QueryRow(ctx,
				`INSERT INTO order_items (order_id, coffee_id, coffee_name, quantity, size, sugar_level, milk_level, unit_price, line_total)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				 RETURNING id`,
				orderID, item.CoffeeID, item.CoffeeName, item.Quantity,
				string(item.Size), string(item.Sugar), string(item.Milk),
				item.UnitPrice.StringFixed(2), item.LineTotal.StringFixed(2),
			).Scan(&item.ID)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	order.ID = orderID
	return orderID, nil
}

// GetOrderByID возвращает заказ вместе с позициями в порядке вставки.
func (r *PostgresRepository) GetOrderByID(ctx context.Context, orderID int64) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, total_amount::text, payment_status, order_status, ordered_at
		 FROM orders
		 WHERE id = $1`,
		orderID,
	)

	order, err := scanOrder(row)
	if err != nil {
		return nil, err
	}

	itemsByOrder, err := r.loadOrderItems(ctx, []int64{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = itemsByOrder[order.ID]

	return order, nil
}

// GetOrdersByUser возвращает заказы пользователя с позициями, новые первыми.
func (r *PostgresRepository) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, total_amount::text, payment_status, order_status, ordered_at
		 FROM orders
		 WHERE user_id = $1
		 ORDER BY ordered_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	return r.collectOrders(ctx, rows)
}

// GetAllOrders возвращает все заказы для административного просмотра, новые первыми.
func (r *PostgresRepository) GetAllOrders(ctx context.Context) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, total_amount::text, payment_status, order_status, ordered_at
		 FROM orders
		 ORDER BY ordered_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	return r.collectOrders(ctx, rows)
}

func (r *PostgresRepository) collectOrders(ctx context.Context, rows pgx.Rows) ([]model.Order, error) {
	var (
		orders []model.Order
		ids    []int64
	)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if len(orders) == 0 {
		return orders, nil
	}

	itemsByOrder, err := r.loadOrderItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = itemsByOrder[orders[i].ID]
	}

	return orders, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o             model.Order
		total         string
		paymentStatus string
		orderStatus   string
	)
	err := row.Scan(&o.ID, &o.UserID, &total, &paymentStatus, &orderStatus, &o.OrderedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	if o.TotalAmount, err = parseMoney(total); err != nil {
		return nil, err
	}
	if o.PaymentStatus, err = model.ParsePaymentStatus(paymentStatus); err != nil {
		return nil, fmt.Errorf("decode order %d: %w", o.ID, err)
	}
	if o.OrderStatus, err = model.ParseOrderStatus(orderStatus); err != nil {
		return nil, fmt.Errorf("decode order %d: %w", o.ID, err)
	}

	return &o, nil
}

func (r *PostgresRepository) loadOrderItems(ctx context.Context, orderIDs []int64) (map[int64][]model.OrderItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, coffee_id, coffee_name, quantity, size, sugar_level, milk_level, unit_price::text, line_total::text
		 FROM order_items
		 WHERE order_id = ANY($1)
		 ORDER BY id`,
		orderIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	res := make(map[int64][]model.OrderItem, len(orderIDs))
	for rows.Next() {
		var (
			item      model.OrderItem
			size      string
			sugar     string
			milk      string
			unitPrice string
			lineTotal string
		)
		err := rows.Scan(&item.ID, &item.OrderID, &item.CoffeeID, &item.CoffeeName, &item.Quantity,
			&size, &sugar, &milk, &unitPrice, &lineTotal)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}

		if item.Size, err = model.ParseSize(size); err != nil {
			return nil, fmt.Errorf("decode order item %d: %w", item.ID, err)
		}
		if item.Sugar, err = model.ParseLevel(sugar); err != nil {
			return nil, fmt.Errorf("decode order item %d: %w", item.ID, err)
		}
		if item.Milk, err = model.ParseLevel(milk); err != nil {
			return nil, fmt.Errorf("decode order item %d: %w", item.ID, err)
		}
		if item.UnitPrice, err = parseMoney(unitPrice); err != nil {
			return nil, err
		}
		if item.LineTotal, err = parseMoney(lineTotal); err != nil {
			return nil, err
		}

		res[item.OrderID] = append(res[item.OrderID], item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ChangeOrderStatus переводит заказ в новый статус. Проверка допустимости
// перехода выполняется под блокировкой строки заказа, чтобы исключить гонку
// между чтением текущего статуса и записью нового.
func (r *PostgresRepository) ChangeOrderStatus(ctx context.Context, orderID int64, next model.OrderStatus) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var current string
		err = tx.QueryRow(ctx,
			`SELECT order_status FROM orders WHERE id = $1 FOR UPDATE`,
			orderID,
		).Scan(&current)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}

		currentStatus, err := model.ParseOrderStatus(current)
		if err != nil {
			return fmt.Errorf("decode order %d: %w", orderID, err)
		}

		if !status.CanTransitionOrder(currentStatus, next) {
			return fmt.Errorf("%w: order %s -> %s", status.ErrIllegalTransition, currentStatus, next)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE orders SET order_status = $2 WHERE id = $1`,
			orderID, string(next),
		); err != nil {
			return fmt.Errorf("update order status: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// SettlePayment фиксирует оплату заказа одной транзакцией: блокирует строку
// заказа, отклоняет повторную оплату, при оплате кошельком условно списывает
// баланс, записывает платёж и переводит статусы PENDING->COMPLETED и
// PLACED->PREPARING. Либо выполняется всё, либо ничего.
func (r *PostgresRepository) SettlePayment(ctx context.Context, orderID int64, method model.PaymentMethod, transactionID string) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var (
			userID        int64
			total         string
			paymentStatus string
			orderStatus   string
		)
		err = tx.QueryRow(ctx,
			`SELECT user_id, total_amount::text, payment_status, order_status
			 FROM orders
			 WHERE id = $1
			 FOR UPDATE`,
			orderID,
		).Scan(&userID, &total, &paymentStatus, &orderStatus)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}

		current, err := model.ParsePaymentStatus(paymentStatus)
		if err != nil {
			return fmt.Errorf("decode order %d: %w", orderID, err)
		}
		currentOrder, err := model.ParseOrderStatus(orderStatus)
		if err != nil {
			return fmt.Errorf("decode order %d: %w", orderID, err)
		}

		// Повторный вызов после успешной оплаты не должен списывать деньги ещё раз.
		if !status.CanTransitionPayment(current, model.PaymentStatusCompleted) {
			return fmt.Errorf("%w: order %d", ErrPaymentAlreadyCompleted, orderID)
		}
		if currentOrder == model.OrderStatusCancelled {
			return fmt.Errorf("%w: order %d is cancelled", ErrOrderNotPayable, orderID)
		}

		amount, err := parseMoney(total)
		if err != nil {
			return err
		}

		if method == model.PaymentMethodWallet {
			cmdTag, err := tx.Exec(ctx,
				`UPDATE users SET balance = balance - $2 WHERE id = $1 AND balance >= $2`,
				userID, amount.StringFixed(2),
			)
			if err != nil {
				return fmt.Errorf("debit balance: %w", err)
			}
			if cmdTag.RowsAffected() == 0 {
				return ErrInsufficientBalance
			}
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO payments (order_id, amount, method, transaction_id) VALUES ($1, $2, $3, $4)`,
			orderID, amount.StringFixed(2), string(method), transactionID,
		); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE orders SET payment_status = $2 WHERE id = $1`,
			orderID, string(model.PaymentStatusCompleted),
		); err != nil {
			return fmt.Errorf("update payment status: %w", err)
		}

		// Каскад: оплаченный заказ не остаётся в PLACED.
		if currentOrder == model.OrderStatusPlaced {
			if _, err := tx.Exec(ctx,
				`UPDATE orders SET order_status = $2 WHERE id = $1`,
				orderID, string(model.OrderStatusPreparing),
			); err != nil {
				return fmt.Errorf("update order status: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// MarkPaymentFailed помечает неуспешную попытку оплаты, не двигая заказ.
func (r *PostgresRepository) MarkPaymentFailed(ctx context.Context, orderID int64) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE orders SET payment_status = $2 WHERE id = $1 AND payment_status = $3`,
		orderID, string(model.PaymentStatusFailed), string(model.PaymentStatusPending),
	)
	if err != nil {
		return fmt.Errorf("mark payment failed: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// CancelOrder отменяет заказ пользователя одной транзакцией. Если оплата уже
// завершена, средства возвращаются на кошелёк и оплата помечается REFUNDED.
// При userID > 0 дополнительно проверяется принадлежность заказа.
func (r *PostgresRepository) CancelOrder(ctx context.Context, orderID, userID int64) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var (
			ownerID       int64
			total         string
			paymentStatus string
			orderStatus   string
		)
		err = tx.QueryRow(ctx,
			`SELECT user_id, total_amount::text, payment_status, order_status
			 FROM orders
			 WHERE id = $1
			 FOR UPDATE`,
			orderID,
		).Scan(&ownerID, &total, &paymentStatus, &orderStatus)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}

		if userID > 0 && ownerID != userID {
			return ErrOrderNotFound
		}

		currentOrder, err := model.ParseOrderStatus(orderStatus)
		if err != nil {
			return fmt.Errorf("decode order %d: %w", orderID, err)
		}
		currentPayment, err := model.ParsePaymentStatus(paymentStatus)
		if err != nil {
			return fmt.Errorf("decode order %d: %w", orderID, err)
		}

		if !status.CanTransitionOrder(currentOrder, model.OrderStatusCancelled) {
			return fmt.Errorf("%w: order %s -> %s", status.ErrIllegalTransition, currentOrder, model.OrderStatusCancelled)
		}

		if currentPayment == model.PaymentStatusCompleted {
			amount, err := parseMoney(total)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx,
				`UPDATE users SET balance = balance + $2 WHERE id = $1`,
				ownerID, amount.StringFixed(2),
			); err != nil {
				return fmt.Errorf("refund balance: %w", err)
			}
			if _, err := tx.Exec(ctx,
				`UPDATE orders SET payment_status = $2 WHERE id = $1`,
				orderID, string(model.PaymentStatusRefunded),
			); err != nil {
				return fmt.Errorf("update payment status: %w", err)
			}
		}

		if _, err := tx.Exec(ctx,
			`UPDATE orders SET order_status = $2 WHERE id = $1`,
			orderID, string(model.OrderStatusCancelled),
		); err != nil {
			return fmt.Errorf("update order status: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// OrderStats содержит агрегаты по заказам для отчётов.
type OrderStats struct {
	Orders          int64
	CompletedOrders int64
	Revenue         decimal.Decimal
}

// GetOrderStats возвращает количество заказов и выручку по завершённым оплатам
// начиная с указанного момента. Нулевое время означает все заказы.
func (r *PostgresRepository) GetOrderStats(ctx context.Context, since time.Time) (*OrderStats, error) {
	var (
		stats   OrderStats
		revenue string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE payment_status = $2),
		        COALESCE(SUM(total_amount) FILTER (WHERE payment_status = $2), 0)::text
		 FROM orders
		 WHERE ordered_at >= $1`,
		since, string(model.PaymentStatusCompleted),
	).Scan(&stats.Orders, &stats.CompletedOrders, &revenue)
	if err != nil {
		return nil, fmt.Errorf("order stats: %w", err)
	}

	if stats.Revenue, err = parseMoney(revenue); err != nil {
		return nil, err
	}

	return &stats, nil
}

// TopCustomer содержит количество заказов одного из самых активных покупателей.
type TopCustomer struct {
	Name   string
	Orders int64
}

// UserStats содержит агрегаты по пользователям для отчёта статистики.
type UserStats struct {
	Users        int64
	TotalBalance decimal.Decimal
	TopCustomers []TopCustomer
}

// GetUserStats возвращает количество пользователей, суммарный баланс кошельков
// и пятёрку самых активных покупателей по числу заказов.
func (r *PostgresRepository) GetUserStats(ctx context.Context) (*UserStats, error) {
	var (
		stats   UserStats
		balance string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(balance), 0)::text FROM users`,
	).Scan(&stats.Users, &balance)
	if err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}
	if stats.TotalBalance, err = parseMoney(balance); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT u.name, COUNT(o.id)
		 FROM orders o
		 JOIN users u ON u.id = o.user_id
		 GROUP BY u.id, u.name
		 ORDER BY COUNT(o.id) DESC, u.name
		 LIMIT 5`,
	)
	if err != nil {
		return nil, fmt.Errorf("top customers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c TopCustomer
		if err := rows.Scan(&c.Name, &c.Orders); err != nil {
			return nil, fmt.Errorf("scan top customer: %w", err)
		}
		stats.TopCustomers = append(stats.TopCustomers, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &stats, nil
}
