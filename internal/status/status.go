// Package status описывает допустимые переходы статусов заказа и оплаты.
package status

import (
	"errors"
	"fmt"

	"github.com/mmeshcher/coffeevend-system/internal/model"
)

// ErrIllegalTransition возвращается при попытке недопустимого перехода статуса.
var ErrIllegalTransition = errors.New("illegal status transition")

// Статусы заказа движутся только вперёд; отмена возможна до готовности.
var orderTransitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderStatusPlaced:    {model.OrderStatusPreparing, model.OrderStatusCancelled},
	model.OrderStatusPreparing: {model.OrderStatusReady, model.OrderStatusCancelled},
	model.OrderStatusReady:     {model.OrderStatusDelivered},
	model.OrderStatusDelivered: {},
	model.OrderStatusCancelled: {},
}

// FAILED допускает повторную попытку оплаты; REFUNDED терминален.
var paymentTransitions = map[model.PaymentStatus][]model.PaymentStatus{
	model.PaymentStatusPending:   {model.PaymentStatusCompleted, model.PaymentStatusFailed},
	model.PaymentStatusFailed:    {model.PaymentStatusCompleted},
	model.PaymentStatusCompleted: {model.PaymentStatusRefunded},
	model.PaymentStatusRefunded:  {},
}

// CanTransitionOrder сообщает, допустим ли переход статуса заказа.
func CanTransitionOrder(current, next model.OrderStatus) bool {
	for _, allowed := range orderTransitions[current] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CanTransitionPayment сообщает, допустим ли переход статуса оплаты.
func CanTransitionPayment(current, next model.PaymentStatus) bool {
	for _, allowed := range paymentTransitions[current] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ApplyOrder переводит заказ в новый статус либо возвращает ErrIllegalTransition,
// оставляя заказ неизменным.
func ApplyOrder(order *model.Order, next model.OrderStatus) error {
	if !CanTransitionOrder(order.OrderStatus, next) {
		return fmt.Errorf("%w: order %s -> %s", ErrIllegalTransition, order.OrderStatus, next)
	}
	order.OrderStatus = next
	return nil
}

// ApplyPayment переводит оплату заказа в новый статус либо возвращает ErrIllegalTransition.
func ApplyPayment(order *model.Order, next model.PaymentStatus) error {
	if !CanTransitionPayment(order.PaymentStatus, next) {
		return fmt.Errorf("%w: payment %s -> %s", ErrIllegalTransition, order.PaymentStatus, next)
	}
	order.PaymentStatus = next
	return nil
}
