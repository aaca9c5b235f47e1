package prescription

import (
	"strings"

	"dawapos/m/domain"
)

// ResolvedLine is a proposed cart line for one prescription item. Requested
// is the full parsed quantity; Quantity is capped to on-hand stock, with the
// difference in Shortfall for the operator to see.
type ResolvedLine struct {
	Item      *domain.CatalogItem
	UnitType  domain.UnitType
	Requested int64
	Quantity  int64
	Shortfall int64
}

// Result is the outcome of resolving a whole prescription. An empty Lines
// slice is not an error; the caller decides what that means.
type Result struct {
	Lines     []ResolvedLine
	Unmatched int
}

// ResolveItem finds the prescribed medicine in the catalog: a
// case-insensitive substring match in either direction, first match in
// catalog order. Items with nothing on hand are not offered.
func ResolveItem(medicineText string, catalog []domain.CatalogItem) *domain.CatalogItem {
	text := strings.ToLower(strings.TrimSpace(medicineText))
	if text == "" {
		return nil
	}
	for i := range catalog {
		item := &catalog[i]
		name := strings.ToLower(item.Name)
		if strings.Contains(name, text) || strings.Contains(text, name) {
			if item.OnHand == 0 {
				return nil
			}
			return item
		}
	}
	return nil
}

// ResolveLine computes dosage*frequency*duration in the item's first declared
// unit (ordinarily the single unit), silently capped to available stock.
func ResolveLine(item *domain.CatalogItem, pi domain.PrescriptionItem) ResolvedLine {
	total := ParseDosageQuantity(pi.DosageText) *
		ParseFrequencyPerDay(pi.FrequencyText) *
		ParseDurationDays(pi.DurationText)

	unitType := domain.UnitSingle
	if len(item.Units) > 0 {
		unitType = item.Units[0].Type
	}

	qty := total
	if qty > item.OnHand {
		qty = item.OnHand
	}
	return ResolvedLine{
		Item:      item,
		UnitType:  unitType,
		Requested: total,
		Quantity:  qty,
		Shortfall: total - qty,
	}
}

// Resolve applies ResolveItem and ResolveLine per prescription item, counting
// items with no in-stock catalog match as unmatched.
func Resolve(p *domain.Prescription, catalog []domain.CatalogItem) Result {
	var res Result
	for _, pi := range p.Items {
		item := ResolveItem(pi.MedicineText, catalog)
		if item == nil {
			res.Unmatched++
			continue
		}
		res.Lines = append(res.Lines, ResolveLine(item, pi))
	}
	return res
}
