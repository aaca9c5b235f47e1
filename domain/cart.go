package domain

type CartLine struct {
	ID        string   `json:"id"`
	ItemID    int64    `json:"item_id"`
	ItemName  string   `json:"item_name"`
	UnitType  UnitType `json:"unit_type"`
	BaseQty   int64    `json:"base_quantity"` // base units per sold unit
	Quantity  int64    `json:"quantity"`
	UnitPrice float64  `json:"unit_price"`
	UnitCost  float64  `json:"unit_cost"`
	LineTotal float64  `json:"line_total"`
}

// Cart is an operator's in-progress order. It lives in process memory only;
// a restart of the host loses it.
type Cart struct {
	OperatorID           int64      `json:"operator_id"`
	Lines                []CartLine `json:"lines"`
	CustomerName         string     `json:"customer_name,omitempty"`
	CustomerPhone        string     `json:"customer_phone,omitempty"`
	PaymentMethod        string     `json:"payment_method,omitempty"`
	SourcePrescriptionID *int64     `json:"source_prescription_id,omitempty"`
}
