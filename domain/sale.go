package domain

type Sale struct {
	ID            int64   `db:"id" json:"id"`
	Subtotal      float64 `db:"subtotal" json:"subtotal"`
	Discount      float64 `db:"discount" json:"discount"`
	Tax           float64 `db:"tax" json:"tax"`
	Total         float64 `db:"total" json:"total"`
	PaymentMethod string  `db:"payment_method" json:"payment_method"`
	CashierID     int64   `db:"cashier_id" json:"cashier_id"`
	CashierName   string  `db:"cashier_name" json:"cashier_name"`
	CustomerName  string  `db:"customer_name" json:"customer_name"`
	CustomerPhone string  `db:"customer_phone" json:"customer_phone"`
	CreatedAt     string  `db:"created_at" json:"created_at"`

	Items []SaleItem `db:"-" json:"items,omitempty"`
}

// SaleItem is a line snapshot copied from the cart at commit time, decoupled
// from the live cart.
type SaleItem struct {
	ID        int64    `db:"id" json:"id"`
	SaleID    int64    `db:"sale_id" json:"sale_id"`
	ItemID    int64    `db:"item_id" json:"item_id"`
	ItemName  string   `db:"item_name" json:"item_name"`
	UnitType  UnitType `db:"unit_type" json:"unit_type"`
	Quantity  int64    `db:"quantity" json:"quantity"`
	UnitPrice float64  `db:"unit_price" json:"unit_price"`
	Subtotal  float64  `db:"subtotal" json:"subtotal"`
}
