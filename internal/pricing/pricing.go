// Package pricing derives per-unit sale prices from a single source unit so
// that price scales linearly with base-unit count. Rounding is two decimal
// places, half-up, applied independently per unit: a strip price may differ
// from singlePrice*stripBaseQuantity by a sub-cent, matching retail practice.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"

	"dawapos/m/domain"
)

// ErrInvalidInput marks malformed pricing inputs (non-positive base quantity).
var ErrInvalidInput = errors.New("invalid pricing input")

var hundred = decimal.NewFromInt(100)

// DerivePricePerBase returns the price of one base unit given the price of a
// source unit and how many base units it contains.
func DerivePricePerBase(sourceUnitPrice decimal.Decimal, sourceBaseQuantity int64) (decimal.Decimal, error) {
	if sourceBaseQuantity <= 0 {
		return decimal.Zero, ErrInvalidInput
	}
	return sourceUnitPrice.Div(decimal.NewFromInt(sourceBaseQuantity)), nil
}

// DeriveAllUnitPrices recomputes every unit's price from the per-base price.
// A zero per-base price or a duplicate unit type in the input is computed
// through deterministically; avoiding duplicates is the caller's job.
func DeriveAllUnitPrices(pricePerBase decimal.Decimal, units []domain.UnitDefinition) []domain.UnitDefinition {
	out := make([]domain.UnitDefinition, len(units))
	for i, u := range units {
		price := pricePerBase.Mul(decimal.NewFromInt(u.BaseQuantity)).Round(2)
		u.Price, _ = price.Float64()
		out[i] = u
	}
	return out
}

// MarkupPercent reports the percentage markup of selling over cost. The
// second return is false when cost is zero and the markup is undefined.
func MarkupPercent(cost, selling decimal.Decimal) (decimal.Decimal, bool) {
	if cost.IsZero() {
		return decimal.Zero, false
	}
	return selling.Sub(cost).Div(cost).Mul(hundred), true
}
