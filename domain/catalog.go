package domain

// UnitType names a sellable unit of a catalog item. Tenants may extend the
// set; these are the built-in ones.
type UnitType string

const (
	UnitSingle UnitType = "SINGLE"
	UnitStrip  UnitType = "STRIP"
	UnitBox    UnitType = "BOX"
	UnitPair   UnitType = "PAIR"
	UnitBottle UnitType = "BOTTLE"
)

type UnitDefinition struct {
	ID           int64    `db:"id" json:"id"`
	ItemID       int64    `db:"item_id" json:"item_id"`
	Type         UnitType `db:"type" json:"type"`
	BaseQuantity int64    `db:"base_quantity" json:"base_quantity"`
	Price        float64  `db:"price" json:"price"`
}

type CatalogItem struct {
	ID           int64   `db:"id" json:"id"`
	Name         string  `db:"name" json:"name"`
	GenericName  string  `db:"generic_name" json:"generic_name"`
	Category     string  `db:"category" json:"category"`
	ReorderLevel int64   `db:"reorder_level" json:"reorder_level"`
	CostPrice    float64 `db:"cost_price" json:"cost_price"` // per base unit
	CreatedAt    string  `db:"created_at" json:"created_at"`

	// Populated from the stock ledger and the item_units table, not stored
	// on the items row itself.
	OnHand int64            `db:"-" json:"on_hand"`
	Units  []UnitDefinition `db:"-" json:"units,omitempty"`
}

// Unit returns the definition for the given unit type, or nil.
func (c *CatalogItem) Unit(t UnitType) *UnitDefinition {
	for i := range c.Units {
		if c.Units[i].Type == t {
			return &c.Units[i]
		}
	}
	return nil
}

// BaseUnit returns the unit with baseQuantity 1, or nil. Exactly one such
// unit is expected per item; that is a documented precondition on catalog
// writes, not something enforced here.
func (c *CatalogItem) BaseUnit() *UnitDefinition {
	for i := range c.Units {
		if c.Units[i].BaseQuantity == 1 {
			return &c.Units[i]
		}
	}
	return nil
}
