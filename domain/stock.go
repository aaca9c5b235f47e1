package domain

// StockReason classifies a stock ledger event.
type StockReason string

const (
	StockSale        StockReason = "SALE"
	StockPurchase    StockReason = "PURCHASE"
	StockAdjustment  StockReason = "ADJUSTMENT"
	StockLoss        StockReason = "LOSS"
	StockReturn      StockReason = "RETURN"
	StockExpired     StockReason = "EXPIRED"
	StockInternalUse StockReason = "INTERNAL_USE"
)

// Deducting reports whether a negative delta with this reason is subject to
// the non-negative balance check. Additions (PURCHASE, RETURN) are unbounded.
func (r StockReason) Deducting() bool {
	switch r {
	case StockSale, StockLoss, StockAdjustment, StockExpired, StockInternalUse:
		return true
	}
	return false
}

type StockEvent struct {
	ID              int64       `db:"id" json:"id"`
	ItemID          int64       `db:"item_id" json:"item_id"`
	Delta           int64       `db:"delta" json:"delta"`
	Reason          StockReason `db:"reason" json:"reason"`
	ReferenceID     *string     `db:"reference_id" json:"reference_id,omitempty"`
	PerformedBy     int64       `db:"performed_by" json:"performed_by"`
	PerformedByRole string      `db:"performed_by_role" json:"performed_by_role"`
	Balance         int64       `db:"balance" json:"balance"`
	CreatedAt       string      `db:"created_at" json:"created_at"`
}
