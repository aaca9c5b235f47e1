// Package checkout turns a validated cart into a committed sale: line
// snapshots, stock deductions, an optional credit account and prescription
// dispensing. Stock deductions are per item with no cross-item transaction;
// see StockRaceError for how mid-checkout failures surface.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"

	"dawapos/m/domain"
	"dawapos/m/internal/cart"
	"dawapos/m/internal/credit"
	"dawapos/m/internal/prescription"
	"dawapos/m/internal/stock"
)

// ErrEmptyCart means there is nothing to check out.
var ErrEmptyCart = errors.New("cart is empty")

// Deferred payment methods open a credit account instead of settling at the
// counter.
func deferredPayment(method string) bool {
	return method == "credit" || method == "due"
}

// LineShortage names a cart line whose requested quantity exceeds current
// stock.
type LineShortage struct {
	LineID    string `json:"line_id"`
	ItemID    int64  `json:"item_id"`
	ItemName  string `json:"item_name"`
	Requested int64  `json:"requested"` // in base units
	Available int64  `json:"available"`
}

// StockRaceError reports a validate-then-commit race. Deducted lists lines
// whose stock was already taken before the failure; those deductions are not
// rolled back, the caller decides whether to compensate (see Compensate).
type StockRaceError struct {
	Shortages []LineShortage    `json:"shortages"`
	Deducted  []domain.CartLine `json:"deducted"`
}

func (e *StockRaceError) Error() string {
	return fmt.Sprintf("stock changed during checkout: %d line(s) short, %d line(s) already deducted",
		len(e.Shortages), len(e.Deducted))
}

// Operator identifies who is checking out, stamped onto the sale and the
// stock events.
type Operator struct {
	ID   int64
	Name string
	Role string
}

// Options steers a single checkout attempt. AllowPartial commits the sale
// for the successfully deducted prefix when a later line hits a stock race;
// by default any per-line failure fails the whole checkout.
type Options struct {
	PaymentMethod string
	Discount      float64
	Tax           float64
	AllowPartial  bool
	Operator      Operator
}

type Engine struct {
	db            *sqlx.DB
	stock         *stock.Ledger
	credit        *credit.Ledger
	prescriptions *prescription.Store
}

func NewEngine(db *sqlx.DB, ledger *stock.Ledger, creditLedger *credit.Ledger, prescriptions *prescription.Store) *Engine {
	return &Engine{db: db, stock: ledger, credit: creditLedger, prescriptions: prescriptions}
}

// Validate checks the cart against current stock. The cart may have been
// built against stale data, so commit re-checks line by line anyway; this is
// the cheap up-front pass.
func (e *Engine) Validate(ctx context.Context, c *domain.Cart) error {
	if len(c.Lines) == 0 {
		return ErrEmptyCart
	}
	var shortages []LineShortage
	for _, line := range c.Lines {
		balance, err := e.stock.BalanceAsOf(ctx, line.ItemID, nil)
		if err != nil {
			return err
		}
		requested := line.Quantity * line.BaseQty
		if requested > balance {
			shortages = append(shortages, LineShortage{
				LineID: line.ID, ItemID: line.ItemID, ItemName: line.ItemName,
				Requested: requested, Available: balance,
			})
		}
	}
	if len(shortages) > 0 {
		return &StockRaceError{Shortages: shortages}
	}
	return nil
}

// Commit snapshots the cart into a sale, deducts stock per line, opens a
// credit account for deferred payment methods, marks the source prescription
// dispensed (full commits only) and clears the cart.
//
// Deductions stop at the first failing line. Without AllowPartial the
// attempt is abandoned: the draft sale rows are removed and the returned
// StockRaceError lists the deductions that had already been applied. With
// AllowPartial the sale is committed covering only the deducted prefix and
// is returned alongside the StockRaceError naming the dropped line.
func (e *Engine) Commit(ctx context.Context, c *domain.Cart, opts Options) (*domain.Sale, error) {
	if err := e.Validate(ctx, c); err != nil {
		return nil, err
	}

	totals := cart.ComputeTotals(c, opts.Discount, opts.Tax)
	sale := &domain.Sale{
		Subtotal:      totals.Subtotal,
		Discount:      totals.Discount,
		Tax:           totals.Tax,
		Total:         totals.Total,
		PaymentMethod: opts.PaymentMethod,
		CashierID:     opts.Operator.ID,
		CashierName:   opts.Operator.Name,
		CustomerName:  c.CustomerName,
		CustomerPhone: c.CustomerPhone,
	}
	if err := e.insertSale(ctx, sale, c.Lines); err != nil {
		return nil, err
	}
	ref := strconv.FormatInt(sale.ID, 10)

	var deducted []domain.CartLine
	var partial *StockRaceError
	for _, line := range c.Lines {
		_, err := e.stock.Append(ctx, domain.StockEvent{
			ItemID:          line.ItemID,
			Delta:           -(line.Quantity * line.BaseQty),
			Reason:          domain.StockSale,
			ReferenceID:     &ref,
			PerformedBy:     opts.Operator.ID,
			PerformedByRole: opts.Operator.Role,
		})
		if err == nil {
			deducted = append(deducted, line)
			continue
		}

		var insufficient *stock.InsufficientStockError
		if !errors.As(err, &insufficient) {
			return nil, err
		}
		race := &StockRaceError{
			Shortages: []LineShortage{{
				LineID: line.ID, ItemID: line.ItemID, ItemName: line.ItemName,
				Requested: insufficient.Requested, Available: insufficient.Available,
			}},
			Deducted: deducted,
		}
		if !opts.AllowPartial {
			// Abandon the draft sale. Applied deductions stay on the
			// ledger and travel with the error for compensation.
			e.deleteSale(ctx, sale.ID)
			return nil, race
		}
		if len(deducted) == 0 {
			e.deleteSale(ctx, sale.ID)
			return nil, race
		}
		if err := e.shrinkSale(ctx, sale, deducted, opts); err != nil {
			return nil, err
		}
		partial = race
		break
	}

	if deferredPayment(opts.PaymentMethod) {
		if _, err := e.credit.Open(ctx, sale); err != nil {
			return nil, err
		}
	}
	// A partial commit leaves the prescription PENDING: the dropped lines
	// were never handed over, so it can be dispensed again once restocked.
	if c.SourcePrescriptionID != nil && partial == nil {
		if err := e.prescriptions.MarkDispensed(ctx, *c.SourcePrescriptionID, opts.Operator.ID); err != nil {
			return nil, err
		}
	}

	cart.Clear(c)
	if partial != nil {
		// Committed for the deducted prefix; the error carries the lines
		// that were left out.
		return sale, partial
	}
	return sale, nil
}

// Compensate issues offsetting RETURN events for deductions left behind by a
// failed checkout, re-crediting the stock the aborted sale took.
func (e *Engine) Compensate(ctx context.Context, deducted []domain.CartLine, op Operator) error {
	for _, line := range deducted {
		if _, err := e.stock.Append(ctx, domain.StockEvent{
			ItemID:          line.ItemID,
			Delta:           line.Quantity * line.BaseQty,
			Reason:          domain.StockReturn,
			PerformedBy:     op.ID,
			PerformedByRole: op.Role,
		}); err != nil {
			return fmt.Errorf("compensate line %s: %w", line.ID, err)
		}
	}
	return nil
}

func (e *Engine) insertSale(ctx context.Context, sale *domain.Sale, lines []domain.CartLine) error {
	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sale: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowxContext(ctx,
		`INSERT INTO sales (subtotal, discount, tax, total, payment_method, cashier_id, cashier_name, customer_name, customer_phone)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		sale.Subtotal, sale.Discount, sale.Tax, sale.Total, sale.PaymentMethod,
		sale.CashierID, sale.CashierName, sale.CustomerName, sale.CustomerPhone).Scan(&sale.ID)
	if err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}

	for _, line := range lines {
		var itemID int64
		err := tx.QueryRowxContext(ctx,
			`INSERT INTO sale_items (sale_id, item_id, item_name, unit_type, quantity, unit_price, subtotal)
			 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			sale.ID, line.ItemID, line.ItemName, line.UnitType, line.Quantity, line.UnitPrice, line.LineTotal).Scan(&itemID)
		if err != nil {
			return fmt.Errorf("insert sale item: %w", err)
		}
		sale.Items = append(sale.Items, domain.SaleItem{
			ID: itemID, SaleID: sale.ID, ItemID: line.ItemID, ItemName: line.ItemName,
			UnitType: line.UnitType, Quantity: line.Quantity, UnitPrice: line.UnitPrice, Subtotal: line.LineTotal,
		})
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sale: %w", err)
	}
	return nil
}

// shrinkSale rewrites a partially committed sale to cover only the deducted
// prefix, recomputing totals over those lines.
func (e *Engine) shrinkSale(ctx context.Context, sale *domain.Sale, deducted []domain.CartLine, opts Options) error {
	prefix := &domain.Cart{Lines: deducted}
	totals := cart.ComputeTotals(prefix, opts.Discount, opts.Tax)

	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sale shrink: %w", err)
	}
	defer tx.Rollback()

	var remaining []domain.SaleItem
	for _, item := range sale.Items {
		deductedLine := false
		for _, line := range deducted {
			if line.ItemID == item.ItemID && line.UnitType == item.UnitType {
				deductedLine = true
				break
			}
		}
		if deductedLine {
			remaining = append(remaining, item)
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sale_items WHERE id = $1`, item.ID); err != nil {
			return fmt.Errorf("drop undeducted sale item: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sales SET subtotal = $1, total = $2 WHERE id = $3`,
		totals.Subtotal, totals.Total, sale.ID); err != nil {
		return fmt.Errorf("shrink sale: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sale shrink: %w", err)
	}

	sale.Items = remaining
	sale.Subtotal = totals.Subtotal
	sale.Total = totals.Total
	return nil
}

func (e *Engine) deleteSale(ctx context.Context, saleID int64) {
	// Best effort; the sale was never reported committed.
	_, _ = e.db.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, saleID)
	_, _ = e.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
}
