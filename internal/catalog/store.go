// Package catalog is the item store: names, categories, unit definitions and
// the live on-hand balance read from the stock ledger.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"dawapos/m/domain"
)

// ErrNotFound means no catalog item matches the given id.
var ErrNotFound = errors.New("catalog item not found")

type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Create inserts an item and its unit definitions. Callers are expected to
// supply exactly one unit with base quantity 1 and no duplicate types; see
// the pricing package for how unit prices are derived.
func (s *Store) Create(ctx context.Context, item *domain.CatalogItem) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin item create: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO items (name, generic_name, category, reorder_level, cost_price)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		item.Name, item.GenericName, item.Category, item.ReorderLevel, item.CostPrice).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert item: %w", err)
	}

	for _, u := range item.Units {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO item_units (item_id, type, base_quantity, price) VALUES ($1, $2, $3, $4)`,
			id, u.Type, u.BaseQuantity, u.Price); err != nil {
			return 0, fmt.Errorf("insert item unit %s: %w", u.Type, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit item create: %w", err)
	}
	return id, nil
}

// Get loads one item with units and current balance.
func (s *Store) Get(ctx context.Context, id int64) (*domain.CatalogItem, error) {
	var item domain.CatalogItem
	err := s.db.GetContext(ctx, &item,
		`SELECT id, name, generic_name, category, reorder_level, cost_price, created_at
		 FROM items WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load item %d: %w", id, err)
	}
	if err := s.hydrate(ctx, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// List returns items whose name or generic name contains the query
// (case-insensitive), or all items when the query is empty. Units and
// balances are included.
func (s *Store) List(ctx context.Context, query string) ([]domain.CatalogItem, error) {
	var items []domain.CatalogItem
	var err error
	if q := strings.TrimSpace(query); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		err = s.db.SelectContext(ctx, &items,
			`SELECT id, name, generic_name, category, reorder_level, cost_price, created_at
			 FROM items WHERE lower(name) LIKE $1 OR lower(generic_name) LIKE $2 ORDER BY name`, like, like)
	} else {
		err = s.db.SelectContext(ctx, &items,
			`SELECT id, name, generic_name, category, reorder_level, cost_price, created_at
			 FROM items ORDER BY name`)
	}
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	for i := range items {
		if err := s.hydrate(ctx, &items[i]); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// Categories returns the distinct non-empty categories in use.
func (s *Store) Categories(ctx context.Context) ([]string, error) {
	var categories []string
	if err := s.db.SelectContext(ctx, &categories,
		`SELECT DISTINCT category FROM items WHERE category != '' ORDER BY category`); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// LowStock returns items whose balance has reached their reorder level.
func (s *Store) LowStock(ctx context.Context) ([]domain.CatalogItem, error) {
	items, err := s.List(ctx, "")
	if err != nil {
		return nil, err
	}
	low := items[:0]
	for _, item := range items {
		if item.OnHand <= item.ReorderLevel {
			low = append(low, item)
		}
	}
	return low, nil
}

func (s *Store) hydrate(ctx context.Context, item *domain.CatalogItem) error {
	if err := s.db.SelectContext(ctx, &item.Units,
		`SELECT id, item_id, type, base_quantity, price FROM item_units WHERE item_id = $1 ORDER BY id`,
		item.ID); err != nil {
		return fmt.Errorf("load units for item %d: %w", item.ID, err)
	}
	if err := s.db.GetContext(ctx, &item.OnHand,
		`SELECT COALESCE(SUM(delta), 0) FROM stock_events WHERE item_id = $1`, item.ID); err != nil {
		return fmt.Errorf("load balance for item %d: %w", item.ID, err)
	}
	return nil
}
