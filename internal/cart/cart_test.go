package cart

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dawapos/m/domain"
)

func panadol() *domain.CatalogItem {
	return &domain.CatalogItem{
		ID:        1,
		Name:      "Panadol",
		CostPrice: 6.50,
		Units: []domain.UnitDefinition{
			{Type: domain.UnitSingle, BaseQuantity: 1, Price: 10},
			{Type: domain.UnitStrip, BaseQuantity: 10, Price: 100},
		},
	}
}

func TestAddLineMergesSameItemAndUnit(t *testing.T) {
	c := &domain.Cart{OperatorID: 7}
	item := panadol()

	_, err := AddLine(c, item, domain.UnitSingle, 1)
	require.NoError(t, err)
	line, err := AddLine(c, item, domain.UnitSingle, 1)
	require.NoError(t, err)

	require.Len(t, c.Lines, 1)
	assert.Equal(t, int64(2), line.Quantity)
	assert.Equal(t, 20.0, line.LineTotal)

	// Same result as a single add with delta 2.
	c2 := &domain.Cart{OperatorID: 7}
	line2, err := AddLine(c2, item, domain.UnitSingle, 2)
	require.NoError(t, err)
	assert.Equal(t, line.Quantity, line2.Quantity)
	assert.Equal(t, line.LineTotal, line2.LineTotal)
}

func TestAddLineDistinctUnitsStayDistinct(t *testing.T) {
	c := &domain.Cart{}
	item := panadol()
	_, err := AddLine(c, item, domain.UnitSingle, 3)
	require.NoError(t, err)
	_, err = AddLine(c, item, domain.UnitStrip, 1)
	require.NoError(t, err)
	assert.Len(t, c.Lines, 2)
}

func TestAddLineUnknownUnit(t *testing.T) {
	c := &domain.Cart{}
	_, err := AddLine(c, panadol(), domain.UnitBottle, 1)
	assert.ErrorIs(t, err, ErrUnitNotFound)
}

func TestAddLineCachesCostPerUnit(t *testing.T) {
	c := &domain.Cart{}
	line, err := AddLine(c, panadol(), domain.UnitStrip, 1)
	require.NoError(t, err)
	assert.Equal(t, 65.0, line.UnitCost) // 6.50 cost per base * 10
}

func TestAdjustQuantity(t *testing.T) {
	c := &domain.Cart{}
	line, err := AddLine(c, panadol(), domain.UnitSingle, 5)
	require.NoError(t, err)

	adjusted, err := AdjustQuantity(c, line.ID, -2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), adjusted.Quantity)
	assert.Equal(t, 30.0, adjusted.LineTotal)

	// Dropping to zero removes the line.
	gone, err := AdjustQuantity(c, line.ID, -3)
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.Empty(t, c.Lines)

	_, err = AdjustQuantity(c, line.ID, 1)
	assert.ErrorIs(t, err, ErrLineNotFound)
}

func TestSubtotalTracksLineChanges(t *testing.T) {
	c := &domain.Cart{}
	item := panadol()
	l1, err := AddLine(c, item, domain.UnitSingle, 4)
	require.NoError(t, err)
	_, err = AddLine(c, item, domain.UnitStrip, 2)
	require.NoError(t, err)
	_, err = AdjustQuantity(c, l1.ID, 1)
	require.NoError(t, err)

	var want float64
	for _, line := range c.Lines {
		want += line.LineTotal
	}
	totals := ComputeTotals(c, 0, 0)
	assert.Equal(t, want, totals.Subtotal)

	require.NoError(t, RemoveLine(c, l1.ID))
	totals = ComputeTotals(c, 0, 0)
	assert.Equal(t, 200.0, totals.Subtotal)
}

func TestComputeTotalsWithDiscountAndTax(t *testing.T) {
	c := &domain.Cart{}
	item := panadol()
	_, err := AddLine(c, item, domain.UnitStrip, 4) // 400
	require.NoError(t, err)
	_, err = AddLine(c, item, domain.UnitSingle, 10) // 100
	require.NoError(t, err)

	totals := ComputeTotals(c, 50, 0)
	assert.Equal(t, 500.0, totals.Subtotal)
	assert.Equal(t, 450.0, totals.Total)

	totals = ComputeTotals(c, 50, 16)
	assert.Equal(t, 466.0, totals.Total)
}

func TestClearResetsCustomerAndPrescription(t *testing.T) {
	presc := int64(9)
	c := &domain.Cart{
		CustomerName:         "Asha",
		CustomerPhone:        "0712000000",
		SourcePrescriptionID: &presc,
	}
	_, err := AddLine(c, panadol(), domain.UnitSingle, 1)
	require.NoError(t, err)

	Clear(c)
	assert.Empty(t, c.Lines)
	assert.Empty(t, c.CustomerName)
	assert.Empty(t, c.CustomerPhone)
	assert.Nil(t, c.SourcePrescriptionID)
}

func TestStoreOneCartPerOperator(t *testing.T) {
	s := NewStore()
	a := s.Get(1)
	b := s.Get(2)
	assert.NotSame(t, a, b)
	assert.Same(t, a, s.Get(1))

	c, release := s.Acquire(1)
	assert.Same(t, a, c)
	release()
}

func TestAcquireSerializesSameOperator(t *testing.T) {
	s := NewStore()
	item := panadol()

	// Concurrent requests with the same token all land on one cart; each
	// merge must see the previous one or quantities get lost.
	const writers = 25
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, release := s.Acquire(7)
			defer release()
			_, err := AddLine(c, item, domain.UnitSingle, 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	c := s.Get(7)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, int64(writers), c.Lines[0].Quantity)
}
