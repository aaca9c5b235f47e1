// Package cart holds each operator's in-progress order. Carts live in
// process memory keyed by operator id. Concurrent requests for the same
// operator must serialize through Store.Acquire; the store mutex only
// protects the map across operators.
package cart

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"dawapos/m/domain"
)

var (
	// ErrUnitNotFound means the item does not define the requested unit type.
	ErrUnitNotFound = errors.New("unit type not defined on item")
	// ErrLineNotFound means no cart line matches the given id.
	ErrLineNotFound = errors.New("cart line not found")
)

// Totals is the cart summary; tax is a caller-supplied pass-through, this
// core computes no tax rules.
type Totals struct {
	Subtotal float64 `json:"subtotal"`
	Discount float64 `json:"discount"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
}

// Store keeps one cart per operator, created on demand.
type Store struct {
	mu    sync.RWMutex
	carts map[int64]*domain.Cart
	locks map[int64]*sync.Mutex
}

func NewStore() *Store {
	return &Store{
		carts: make(map[int64]*domain.Cart),
		locks: make(map[int64]*sync.Mutex),
	}
}

// Get returns the operator's cart, creating an empty one if needed. The
// caller is responsible for serialization; request handlers should go
// through Acquire instead.
func (s *Store) Get(operatorID int64) *domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(operatorID)
}

// Acquire returns the operator's cart with its per-cart lock held. Two
// requests carrying the same token mutate one shared cart; release must be
// called when the request is done with it.
func (s *Store) Acquire(operatorID int64) (c *domain.Cart, release func()) {
	s.mu.Lock()
	c = s.get(operatorID)
	l, ok := s.locks[operatorID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[operatorID] = l
	}
	s.mu.Unlock()
	l.Lock()
	return c, l.Unlock
}

func (s *Store) get(operatorID int64) *domain.Cart {
	c, ok := s.carts[operatorID]
	if !ok {
		c = &domain.Cart{OperatorID: operatorID}
		s.carts[operatorID] = c
	}
	return c
}

// AddLine merges quantity into an existing (item, unit) line or appends a new
// one, caching price and cost at add time. Stock availability is not checked
// here; checkout re-validates against the ledger.
func AddLine(c *domain.Cart, item *domain.CatalogItem, unitType domain.UnitType, qtyDelta int64) (*domain.CartLine, error) {
	unit := item.Unit(unitType)
	if unit == nil {
		return nil, fmt.Errorf("%w: item %d has no unit %q", ErrUnitNotFound, item.ID, unitType)
	}

	for i := range c.Lines {
		line := &c.Lines[i]
		if line.ItemID == item.ID && line.UnitType == unitType {
			line.Quantity += qtyDelta
			if line.Quantity <= 0 {
				removeAt(c, i)
				return nil, nil
			}
			recompute(line)
			return line, nil
		}
	}

	qty := qtyDelta
	if qty < 1 {
		qty = 1
	}
	line := domain.CartLine{
		ID:        uuid.NewString(),
		ItemID:    item.ID,
		ItemName:  item.Name,
		UnitType:  unitType,
		BaseQty:   unit.BaseQuantity,
		Quantity:  qty,
		UnitPrice: unit.Price,
		UnitCost:  round2(item.CostPrice * float64(unit.BaseQuantity)),
	}
	recompute(&line)
	c.Lines = append(c.Lines, line)
	return &c.Lines[len(c.Lines)-1], nil
}

// AdjustQuantity applies a signed delta to a line; dropping to zero or below
// removes it.
func AdjustQuantity(c *domain.Cart, lineID string, delta int64) (*domain.CartLine, error) {
	for i := range c.Lines {
		line := &c.Lines[i]
		if line.ID != lineID {
			continue
		}
		line.Quantity += delta
		if line.Quantity <= 0 {
			removeAt(c, i)
			return nil, nil
		}
		recompute(line)
		return line, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrLineNotFound, lineID)
}

func RemoveLine(c *domain.Cart, lineID string) error {
	for i := range c.Lines {
		if c.Lines[i].ID == lineID {
			removeAt(c, i)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrLineNotFound, lineID)
}

// Clear empties the cart and forgets the customer and prescription linkage.
func Clear(c *domain.Cart) {
	c.Lines = nil
	c.CustomerName = ""
	c.CustomerPhone = ""
	c.PaymentMethod = ""
	c.SourcePrescriptionID = nil
}

// ComputeTotals sums line totals and applies the caller's discount and tax.
func ComputeTotals(c *domain.Cart, discount, tax float64) Totals {
	subtotal := decimal.Zero
	for _, line := range c.Lines {
		subtotal = subtotal.Add(decimal.NewFromFloat(line.LineTotal))
	}
	total := subtotal.Sub(decimal.NewFromFloat(discount)).Add(decimal.NewFromFloat(tax))
	sub, _ := subtotal.Round(2).Float64()
	tot, _ := total.Round(2).Float64()
	return Totals{Subtotal: sub, Discount: discount, Tax: tax, Total: tot}
}

func recompute(line *domain.CartLine) {
	line.LineTotal = round2(line.UnitPrice * float64(line.Quantity))
}

func removeAt(c *domain.Cart, i int) {
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
}

func round2(v float64) float64 {
	out, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return out
}
