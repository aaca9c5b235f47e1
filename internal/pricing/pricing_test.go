package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dawapos/m/domain"
)

func TestDerivePricePerBase(t *testing.T) {
	perBase, err := DerivePricePerBase(decimal.NewFromInt(1000), 100)
	require.NoError(t, err)
	assert.True(t, perBase.Equal(decimal.NewFromInt(10)), "per-base = %s", perBase)

	_, err = DerivePricePerBase(decimal.NewFromInt(1000), 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = DerivePricePerBase(decimal.NewFromInt(1000), -5)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDeriveAllUnitPricesFromBoxSource(t *testing.T) {
	// Box of 100 priced at 1000: single derives to 10.00, a strip of 10 to 100.00.
	perBase, err := DerivePricePerBase(decimal.NewFromInt(1000), 100)
	require.NoError(t, err)

	units := DeriveAllUnitPrices(perBase, []domain.UnitDefinition{
		{Type: domain.UnitSingle, BaseQuantity: 1},
		{Type: domain.UnitStrip, BaseQuantity: 10},
		{Type: domain.UnitBox, BaseQuantity: 100},
	})
	assert.Equal(t, 10.00, units[0].Price)
	assert.Equal(t, 100.00, units[1].Price)
	assert.Equal(t, 1000.00, units[2].Price)
}

func TestDeriveAllUnitPricesRoundsHalfUpPerUnit(t *testing.T) {
	// 0.335 per base: single rounds to 0.34, strip of 3 (1.005) to 1.01.
	perBase := decimal.RequireFromString("0.335")
	units := DeriveAllUnitPrices(perBase, []domain.UnitDefinition{
		{Type: domain.UnitSingle, BaseQuantity: 1},
		{Type: domain.UnitStrip, BaseQuantity: 3},
	})
	assert.Equal(t, 0.34, units[0].Price)
	assert.Equal(t, 1.01, units[1].Price)
}

func TestDeriveAllUnitPricesRatioWithinTolerance(t *testing.T) {
	perBase := decimal.RequireFromString("3.137")
	defs := []domain.UnitDefinition{
		{Type: domain.UnitSingle, BaseQuantity: 1},
		{Type: domain.UnitPair, BaseQuantity: 2},
		{Type: domain.UnitStrip, BaseQuantity: 12},
		{Type: domain.UnitBox, BaseQuantity: 144},
	}
	units := DeriveAllUnitPrices(perBase, defs)
	for _, u := range units {
		exact, _ := perBase.Mul(decimal.NewFromInt(u.BaseQuantity)).Float64()
		assert.InDelta(t, exact, u.Price, 0.01, "unit %s", u.Type)
	}
}

func TestDeriveAllUnitPricesZeroPerBase(t *testing.T) {
	units := DeriveAllUnitPrices(decimal.Zero, []domain.UnitDefinition{
		{Type: domain.UnitSingle, BaseQuantity: 1},
		{Type: domain.UnitBox, BaseQuantity: 50},
	})
	assert.Equal(t, 0.0, units[0].Price)
	assert.Equal(t, 0.0, units[1].Price)
}

func TestMarkupPercent(t *testing.T) {
	m, ok := MarkupPercent(decimal.NewFromInt(80), decimal.NewFromInt(100))
	require.True(t, ok)
	assert.True(t, m.Equal(decimal.NewFromInt(25)), "markup = %s", m)

	_, ok = MarkupPercent(decimal.Zero, decimal.NewFromInt(100))
	assert.False(t, ok)
}
