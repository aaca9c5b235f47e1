package domain

type CreditStatus string

const (
	CreditPending CreditStatus = "PENDING"
	CreditPartial CreditStatus = "PARTIAL"
	CreditPaid    CreditStatus = "PAID"
)

type CreditAccount struct {
	ID            int64        `db:"id" json:"id"`
	SaleID        int64        `db:"sale_id" json:"sale_id"`
	CustomerName  string       `db:"customer_name" json:"customer_name"`
	CustomerPhone string       `db:"customer_phone" json:"customer_phone"`
	TotalAmount   float64      `db:"total_amount" json:"total_amount"`
	PaidAmount    float64      `db:"paid_amount" json:"paid_amount"`
	BalanceAmount float64      `db:"balance_amount" json:"balance_amount"`
	Status        CreditStatus `db:"status" json:"status"`
	CreatedAt     string       `db:"created_at" json:"created_at"`

	Payments []CreditPayment `db:"-" json:"payments,omitempty"`
}

type CreditPayment struct {
	ID        int64   `db:"id" json:"id"`
	AccountID int64   `db:"account_id" json:"account_id"`
	Amount    float64 `db:"amount" json:"amount"`
	Method    string  `db:"method" json:"method"`
	CreatedAt string  `db:"created_at" json:"created_at"`
}
