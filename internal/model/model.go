// Package model содержит доменные сущности кофейного сервиса.
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// User представляет зарегистрированного покупателя с предоплаченным кошельком.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash []byte
	Balance      decimal.Decimal
	CreatedAt    time.Time
}

// CoffeeItem описывает позицию меню.
type CoffeeItem struct {
	ID          int64
	Name        string
	Price       decimal.Decimal
	Description string
	Available   bool
	CreatedAt   time.Time
}

// Ingredient описывает складской запас ингредиента.
type Ingredient struct {
	ID           int64
	Name         string
	Quantity     int32
	Unit         string
	MinThreshold int32
	UpdatedAt    time.Time
}

// LowStock сообщает, что запас опустился до порогового значения или ниже.
func (i Ingredient) LowStock() bool {
	return i.Quantity <= i.MinThreshold
}

// Size описывает размер напитка.
type Size string

const (
	SizeSmall  Size = "SMALL"
	SizeMedium Size = "MEDIUM"
	SizeLarge  Size = "LARGE"
)

// ParseSize разбирает строковое представление размера, отклоняя неизвестные значения.
func ParseSize(s string) (Size, error) {
	switch Size(s) {
	case SizeSmall, SizeMedium, SizeLarge:
		return Size(s), nil
	}
	return "", fmt.Errorf("unknown size %q", s)
}

// Level описывает уровень добавки (сахар, молоко).
type Level string

const (
	LevelNone   Level = "NONE"
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// ParseLevel разбирает строковое представление уровня добавки.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelNone, LevelLow, LevelMedium, LevelHigh:
		return Level(s), nil
	}
	return "", fmt.Errorf("unknown level %q", s)
}

// PaymentStatus описывает статус оплаты заказа.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// ParsePaymentStatus разбирает строковое представление статуса оплаты.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch PaymentStatus(s) {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
		return PaymentStatus(s), nil
	}
	return "", fmt.Errorf("unknown payment status %q", s)
}

// OrderStatus описывает статус выполнения заказа.
type OrderStatus string

const (
	OrderStatusPlaced    OrderStatus = "PLACED"
	OrderStatusPreparing OrderStatus = "PREPARING"
	OrderStatusReady     OrderStatus = "READY"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// ParseOrderStatus разбирает строковое представление статуса заказа.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(s) {
	case OrderStatusPlaced, OrderStatusPreparing, OrderStatusReady,
		OrderStatusDelivered, OrderStatusCancelled:
		return OrderStatus(s), nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// PaymentMethod описывает способ оплаты заказа.
type PaymentMethod string

const (
	PaymentMethodWallet PaymentMethod = "WALLET"
	PaymentMethodCard   PaymentMethod = "CARD"
	PaymentMethodUPI    PaymentMethod = "UPI"
	PaymentMethodCash   PaymentMethod = "CASH"
)

// ParsePaymentMethod разбирает строковое представление способа оплаты.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(s) {
	case PaymentMethodWallet, PaymentMethodCard, PaymentMethodUPI, PaymentMethodCash:
		return PaymentMethod(s), nil
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}

// OrderItem описывает одну позицию заказа с рассчитанной ценой.
type OrderItem struct {
	ID         int64
	OrderID    int64
	CoffeeID   int64
	CoffeeName string
	Quantity   int32
	Size       Size
	Sugar      Level
	Milk       Level
	UnitPrice  decimal.Decimal
	LineTotal  decimal.Decimal
}

// Order описывает заказ пользователя вместе с позициями.
// TotalAmount всегда равен точной сумме LineTotal всех позиций.
type Order struct {
	ID            int64
	UserID        int64
	TotalAmount   decimal.Decimal
	PaymentStatus PaymentStatus
	OrderStatus   OrderStatus
	OrderedAt     time.Time
	Items         []OrderItem
}

// Payment описывает зафиксированный факт оплаты заказа.
type Payment struct {
	ID            int64
	OrderID       int64
	Amount        decimal.Decimal
	Method        PaymentMethod
	TransactionID string
	CreatedAt     time.Time
}

// Balance содержит текущий баланс кошелька пользователя.
type Balance struct {
	Current decimal.Decimal `json:"current"`
}
