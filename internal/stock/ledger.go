// Package stock keeps the append-only ledger of stock-affecting events. The
// running sum of deltas for an item is its authoritative on-hand quantity.
package stock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"dawapos/m/domain"
)

// InsufficientStockError is returned when a deducting event would drive an
// item's balance below zero. The event is not recorded.
type InsufficientStockError struct {
	ItemID    int64
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %d: requested %d, available %d", e.ItemID, e.Requested, e.Available)
}

// Ledger appends and sums stock events. Append is a single atomic
// read-modify-write per item: the mutex serializes concurrent checkouts
// against the balance check, the surrounding transaction makes the insert
// all-or-nothing.
type Ledger struct {
	db *sqlx.DB
	mu sync.Mutex
}

func NewLedger(db *sqlx.DB) *Ledger {
	return &Ledger{db: db}
}

// Append validates and records one event, returning the new balance.
func (l *Ledger) Append(ctx context.Context, ev domain.StockEvent) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin stock append: %w", err)
	}
	defer tx.Rollback()

	var current int64
	if err := tx.GetContext(ctx, &current,
		`SELECT COALESCE(SUM(delta), 0) FROM stock_events WHERE item_id = $1`, ev.ItemID); err != nil {
		return 0, fmt.Errorf("read balance for item %d: %w", ev.ItemID, err)
	}

	next := current + ev.Delta
	if next < 0 && ev.Delta < 0 && ev.Reason.Deducting() {
		return 0, &InsufficientStockError{ItemID: ev.ItemID, Requested: -ev.Delta, Available: current}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO stock_events (item_id, delta, reason, reference_id, performed_by, performed_by_role, balance)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ItemID, ev.Delta, ev.Reason, ev.ReferenceID, ev.PerformedBy, ev.PerformedByRole, next); err != nil {
		return 0, fmt.Errorf("append stock event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit stock append: %w", err)
	}
	return next, nil
}

// BalanceAsOf sums deltas for an item up to asOf; nil means the current
// balance, which is the item's on-hand quantity.
func (l *Ledger) BalanceAsOf(ctx context.Context, itemID int64, asOf *time.Time) (int64, error) {
	var balance int64
	var err error
	if asOf == nil {
		err = l.db.GetContext(ctx, &balance,
			`SELECT COALESCE(SUM(delta), 0) FROM stock_events WHERE item_id = $1`, itemID)
	} else {
		// SQLite compares against CURRENT_TIMESTAMP text; pgx wants a real
		// timestamp operand.
		var cutoff any = asOf.UTC().Format("2006-01-02 15:04:05")
		if l.db.DriverName() == "pgx" {
			cutoff = asOf.UTC()
		}
		err = l.db.GetContext(ctx, &balance,
			`SELECT COALESCE(SUM(delta), 0) FROM stock_events WHERE item_id = $1 AND created_at <= $2`,
			itemID, cutoff)
	}
	if err != nil {
		return 0, fmt.Errorf("balance for item %d: %w", itemID, err)
	}
	return balance, nil
}

// History returns an item's events, newest first.
func (l *Ledger) History(ctx context.Context, itemID int64) ([]domain.StockEvent, error) {
	var events []domain.StockEvent
	err := l.db.SelectContext(ctx, &events,
		`SELECT id, item_id, delta, reason, reference_id, performed_by, performed_by_role, balance, created_at
		 FROM stock_events WHERE item_id = $1 ORDER BY id DESC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("stock history for item %d: %w", itemID, err)
	}
	return events, nil
}

// LowStock reports whether an item's balance has reached its reorder level.
func LowStock(item *domain.CatalogItem, balance int64) bool {
	return balance <= item.ReorderLevel
}

// OutOfStock reports whether an item has nothing on hand.
func OutOfStock(balance int64) bool {
	return balance == 0
}
