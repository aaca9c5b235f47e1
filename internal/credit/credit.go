// Package credit tracks partial payments against a sale until its balance
// reaches zero. Payments are append-only; a PAID account is terminal.
package credit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"dawapos/m/domain"
)

var (
	// ErrNotFound means no credit account matches the given id.
	ErrNotFound = errors.New("credit account not found")
	// ErrInvalidAmount means the payment amount is zero or negative.
	ErrInvalidAmount = errors.New("payment amount must be positive")
	// ErrAlreadyPaid means the account is settled; no further payments.
	ErrAlreadyPaid = errors.New("credit account already paid")
)

// ExceedsBalanceError carries the current balance so the caller can guide
// correction.
type ExceedsBalanceError struct {
	Amount  float64
	Balance float64
}

func (e *ExceedsBalanceError) Error() string {
	return fmt.Sprintf("payment %.2f exceeds outstanding balance %.2f", e.Amount, e.Balance)
}

// Ledger manages credit accounts and their payment history.
type Ledger struct {
	db *sqlx.DB
}

func NewLedger(db *sqlx.DB) *Ledger {
	return &Ledger{db: db}
}

// Open creates a PENDING account for a sale's full total.
func (l *Ledger) Open(ctx context.Context, sale *domain.Sale) (*domain.CreditAccount, error) {
	var id int64
	err := l.db.QueryRowxContext(ctx,
		`INSERT INTO credit_accounts (sale_id, customer_name, customer_phone, total_amount, paid_amount, balance_amount, status)
		 VALUES ($1, $2, $3, $4, 0, $5, $6) RETURNING id`,
		sale.ID, sale.CustomerName, sale.CustomerPhone, sale.Total, sale.Total, domain.CreditPending).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("open credit account for sale %d: %w", sale.ID, err)
	}
	return &domain.CreditAccount{
		ID:            id,
		SaleID:        sale.ID,
		CustomerName:  sale.CustomerName,
		CustomerPhone: sale.CustomerPhone,
		TotalAmount:   sale.Total,
		BalanceAmount: sale.Total,
		Status:        domain.CreditPending,
	}, nil
}

// RecordPayment applies one payment and recomputes the account status:
// PENDING while nothing is paid, PAID when the balance hits zero, PARTIAL
// in between.
func (l *Ledger) RecordPayment(ctx context.Context, accountID int64, amount float64, method string) (*domain.CreditAccount, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin payment: %w", err)
	}
	defer tx.Rollback()

	var acc domain.CreditAccount
	err = tx.GetContext(ctx, &acc,
		`SELECT id, sale_id, customer_name, customer_phone, total_amount, paid_amount, balance_amount, status, created_at
		 FROM credit_accounts WHERE id = $1`, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load credit account %d: %w", accountID, err)
	}

	if acc.Status == domain.CreditPaid {
		return nil, ErrAlreadyPaid
	}

	pay := decimal.NewFromFloat(amount).Round(2)
	balance := decimal.NewFromFloat(acc.BalanceAmount)
	if pay.GreaterThan(balance) {
		return nil, &ExceedsBalanceError{Amount: amount, Balance: acc.BalanceAmount}
	}

	paid := decimal.NewFromFloat(acc.PaidAmount).Add(pay)
	newBalance := decimal.NewFromFloat(acc.TotalAmount).Sub(paid)
	status := domain.CreditPartial
	if newBalance.IsZero() {
		status = domain.CreditPaid
	}

	acc.PaidAmount, _ = paid.Round(2).Float64()
	acc.BalanceAmount, _ = newBalance.Round(2).Float64()
	acc.Status = status

	if _, err := tx.ExecContext(ctx,
		`UPDATE credit_accounts SET paid_amount = $1, balance_amount = $2, status = $3 WHERE id = $4`,
		acc.PaidAmount, acc.BalanceAmount, acc.Status, acc.ID); err != nil {
		return nil, fmt.Errorf("update credit account %d: %w", acc.ID, err)
	}
	payAmount, _ := pay.Float64()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO credit_payments (account_id, amount, method) VALUES ($1, $2, $3)`,
		acc.ID, payAmount, method); err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit payment: %w", err)
	}

	if err := l.db.SelectContext(ctx, &acc.Payments,
		`SELECT id, account_id, amount, method, created_at FROM credit_payments WHERE account_id = $1 ORDER BY id`,
		acc.ID); err != nil {
		return nil, fmt.Errorf("load payments: %w", err)
	}
	return &acc, nil
}

// Get loads one account with its payments.
func (l *Ledger) Get(ctx context.Context, accountID int64) (*domain.CreditAccount, error) {
	var acc domain.CreditAccount
	err := l.db.GetContext(ctx, &acc,
		`SELECT id, sale_id, customer_name, customer_phone, total_amount, paid_amount, balance_amount, status, created_at
		 FROM credit_accounts WHERE id = $1`, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load credit account %d: %w", accountID, err)
	}
	if err := l.db.SelectContext(ctx, &acc.Payments,
		`SELECT id, account_id, amount, method, created_at FROM credit_payments WHERE account_id = $1 ORDER BY id`,
		accountID); err != nil {
		return nil, fmt.Errorf("load payments: %w", err)
	}
	return &acc, nil
}

// ListOpen returns accounts still carrying a balance, oldest first.
func (l *Ledger) ListOpen(ctx context.Context) ([]domain.CreditAccount, error) {
	var accounts []domain.CreditAccount
	if err := l.db.SelectContext(ctx, &accounts,
		`SELECT id, sale_id, customer_name, customer_phone, total_amount, paid_amount, balance_amount, status, created_at
		 FROM credit_accounts WHERE status != $1 ORDER BY id`, domain.CreditPaid); err != nil {
		return nil, fmt.Errorf("list open credit accounts: %w", err)
	}
	return accounts, nil
}
