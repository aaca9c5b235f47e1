package seed

import (
	"context"
	"encoding/csv"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"dawapos/m/domain"
	"dawapos/m/internal/catalog"
	"dawapos/m/internal/pricing"
)

// LoadCatalog ingests the CSV into the catalog on first boot. Columns:
// name, generic_name, category, reorder_level, cost_price, single_price,
// pack_type, pack_size. Pack prices are derived from the single price so the
// seeded units stay consistent.
func LoadCatalog(db *sqlx.DB, csvPath string) {
	var existing int
	if err := db.Get(&existing, `SELECT COUNT(*) FROM items`); err == nil && existing > 0 {
		return
	}

	file, err := os.Open(csvPath)
	if err != nil {
		log.Printf("unable to load catalog %s: %v", csvPath, err)
		return
	}
	defer file.Close()

	reader := csv.NewReader(file)
	// Skip header
	if _, err := reader.Read(); err != nil {
		log.Printf("unable to read catalog header: %v", err)
		return
	}

	store := catalog.NewStore(db)
	rows := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("unable to read catalog row: %v", err)
			continue
		}
		if len(record) < 8 {
			continue
		}

		name := strings.TrimSpace(record[0])
		if name == "" {
			continue
		}
		reorder, _ := strconv.ParseInt(strings.TrimSpace(record[3]), 10, 64)
		cost, _ := strconv.ParseFloat(strings.TrimSpace(record[4]), 64)
		singlePrice, _ := strconv.ParseFloat(strings.TrimSpace(record[5]), 64)

		units := []domain.UnitDefinition{{Type: domain.UnitSingle, BaseQuantity: 1, Price: singlePrice}}
		packType := strings.TrimSpace(record[6])
		packSize, _ := strconv.ParseInt(strings.TrimSpace(record[7]), 10, 64)
		if packType != "" && packSize > 1 {
			units = append(units, domain.UnitDefinition{Type: domain.UnitType(packType), BaseQuantity: packSize})
			perBase, err := pricing.DerivePricePerBase(decimal.NewFromFloat(singlePrice), 1)
			if err == nil {
				units = pricing.DeriveAllUnitPrices(perBase, units)
			}
		}

		item := &domain.CatalogItem{
			Name:         name,
			GenericName:  strings.TrimSpace(record[1]),
			Category:     strings.TrimSpace(record[2]),
			ReorderLevel: reorder,
			CostPrice:    cost,
			Units:        units,
		}
		if _, err := store.Create(context.Background(), item); err != nil {
			log.Printf("unable to insert catalog item %s: %v", name, err)
		} else {
			rows++
		}
	}

	log.Printf("seeded catalog with %d items", rows)
}
