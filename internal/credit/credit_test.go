package credit

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"dawapos/m/domain"
	"dawapos/m/internal/migrations"
)

func testLedger(t *testing.T) (*Ledger, *domain.CreditAccount) {
	t.Helper()
	db, err := sqlx.Connect("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	migrations.Run(db)

	var saleID int64
	err = db.QueryRowx(`INSERT INTO sales (subtotal, discount, tax, total, payment_method, cashier_id, cashier_name)
		VALUES (500, 50, 0, 450, 'credit', 1, 'Asha') RETURNING id`).Scan(&saleID)
	require.NoError(t, err)

	ledger := NewLedger(db)
	acc, err := ledger.Open(context.Background(), &domain.Sale{
		ID: saleID, Total: 450, CustomerName: "Juma", CustomerPhone: "0700111222",
	})
	require.NoError(t, err)
	return ledger, acc
}

func TestOpenStartsPending(t *testing.T) {
	_, acc := testLedger(t)
	assert.Equal(t, domain.CreditPending, acc.Status)
	assert.Equal(t, 450.0, acc.TotalAmount)
	assert.Equal(t, 450.0, acc.BalanceAmount)
	assert.Equal(t, 0.0, acc.PaidAmount)
}

func TestPaymentLifecycle(t *testing.T) {
	ledger, opened := testLedger(t)
	ctx := context.Background()

	acc, err := ledger.RecordPayment(ctx, opened.ID, 300, "cash")
	require.NoError(t, err)
	assert.Equal(t, 300.0, acc.PaidAmount)
	assert.Equal(t, 150.0, acc.BalanceAmount)
	assert.Equal(t, domain.CreditPartial, acc.Status)

	acc, err = ledger.RecordPayment(ctx, opened.ID, 150, "mpesa")
	require.NoError(t, err)
	assert.Equal(t, 0.0, acc.BalanceAmount)
	assert.Equal(t, domain.CreditPaid, acc.Status)
	assert.Len(t, acc.Payments, 2)

	// PAID is terminal.
	_, err = ledger.RecordPayment(ctx, opened.ID, 1, "cash")
	assert.ErrorIs(t, err, ErrAlreadyPaid)
}

func TestPaymentValidation(t *testing.T) {
	ledger, opened := testLedger(t)
	ctx := context.Background()

	_, err := ledger.RecordPayment(ctx, opened.ID, 0, "cash")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ledger.RecordPayment(ctx, opened.ID, -10, "cash")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ledger.RecordPayment(ctx, opened.ID, 451, "cash")
	var exceeds *ExceedsBalanceError
	require.ErrorAs(t, err, &exceeds)
	assert.Equal(t, 450.0, exceeds.Balance)

	_, err = ledger.RecordPayment(ctx, 9999, 10, "cash")
	assert.ErrorIs(t, err, ErrNotFound)

	// Rejections left the account untouched.
	acc, err := ledger.Get(ctx, opened.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CreditPending, acc.Status)
	assert.Empty(t, acc.Payments)
}

func TestStatusInvariantAcrossSequence(t *testing.T) {
	ledger, opened := testLedger(t)
	ctx := context.Background()

	for _, amount := range []float64{100, 50, 25, 275} {
		acc, err := ledger.RecordPayment(ctx, opened.ID, amount, "cash")
		require.NoError(t, err)
		switch {
		case acc.BalanceAmount == 0:
			assert.Equal(t, domain.CreditPaid, acc.Status)
		case acc.PaidAmount == 0:
			assert.Equal(t, domain.CreditPending, acc.Status)
		default:
			assert.Equal(t, domain.CreditPartial, acc.Status)
		}
	}

	open, err := ledger.ListOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}
