// Package pricing содержит расчёт цены позиции заказа.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/coffeevend-system/internal/model"
)

var (
	multiplierSmall  = decimal.RequireFromString("0.8")
	multiplierMedium = decimal.NewFromInt(1)
	multiplierLarge  = decimal.RequireFromString("1.3")

	feeSugarHigh = decimal.RequireFromString("0.25")
	feeMilkHigh  = decimal.RequireFromString("0.50")
)

// UnitPrice считает цену одной единицы напитка:
// базовая цена, умноженная на коэффициент размера, плюс надбавки за добавки.
// Надбавки фиксированные и не масштабируются размером. Функция чистая,
// доступность позиции проверяет вызывающая сторона.
func UnitPrice(base decimal.Decimal, size model.Size, sugar, milk model.Level) decimal.Decimal {
	price := base.Mul(sizeMultiplier(size))

	if sugar == model.LevelHigh {
		price = price.Add(feeSugarHigh)
	}
	if milk == model.LevelHigh {
		price = price.Add(feeMilkHigh)
	}

	return price
}

func sizeMultiplier(size model.Size) decimal.Decimal {
	switch size {
	case model.SizeSmall:
		return multiplierSmall
	case model.SizeLarge:
		return multiplierLarge
	default:
		return multiplierMedium
	}
}
