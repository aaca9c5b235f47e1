package migrations

import (
	"fmt"
	"log"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Schema statements are shared between engines; %[1]s is the auto-increment
// primary key and %[2]s the timestamp type, filled in per driver. Inserts
// rely on `RETURNING id`, so both engines must be at least SQLite 3.35 /
// any supported Postgres.
var statements = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id %[1]s,
        username TEXT NOT NULL,
        email TEXT NOT NULL UNIQUE,
        password TEXT NOT NULL,
        role TEXT NOT NULL,
        created_at %[2]s DEFAULT CURRENT_TIMESTAMP
    );`,
	`CREATE TABLE IF NOT EXISTS items (
        id %[1]s,
        name TEXT NOT NULL,
        generic_name TEXT DEFAULT '',
        category TEXT DEFAULT '',
        reorder_level INTEGER NOT NULL DEFAULT 0,
        cost_price REAL NOT NULL DEFAULT 0,
        created_at %[2]s DEFAULT CURRENT_TIMESTAMP,
        UNIQUE(name)
    );`,
	`CREATE TABLE IF NOT EXISTS item_units (
        id %[1]s,
        item_id INTEGER NOT NULL,
        type TEXT NOT NULL,
        base_quantity INTEGER NOT NULL,
        price REAL NOT NULL,
        FOREIGN KEY(item_id) REFERENCES items(id)
    );`,
	`CREATE TABLE IF NOT EXISTS stock_events (
        id %[1]s,
        item_id INTEGER NOT NULL,
        delta INTEGER NOT NULL,
        reason TEXT NOT NULL,
        reference_id TEXT,
        performed_by INTEGER NOT NULL,
        performed_by_role TEXT NOT NULL,
        balance INTEGER NOT NULL,
        created_at %[2]s DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY(item_id) REFERENCES items(id)
    );`,
	`CREATE INDEX IF NOT EXISTS idx_stock_events_item ON stock_events(item_id);`,
	`CREATE TABLE IF NOT EXISTS sales (
        id %[1]s,
        subtotal REAL NOT NULL,
        discount REAL NOT NULL DEFAULT 0,
        tax REAL NOT NULL DEFAULT 0,
        total REAL NOT NULL,
        payment_method TEXT NOT NULL,
        cashier_id INTEGER NOT NULL,
        cashier_name TEXT NOT NULL,
        customer_name TEXT DEFAULT '',
        customer_phone TEXT DEFAULT '',
        created_at %[2]s DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY(cashier_id) REFERENCES users(id)
    );`,
	`CREATE TABLE IF NOT EXISTS sale_items (
        id %[1]s,
        sale_id INTEGER NOT NULL,
        item_id INTEGER NOT NULL,
        item_name TEXT NOT NULL,
        unit_type TEXT NOT NULL,
        quantity INTEGER NOT NULL,
        unit_price REAL NOT NULL,
        subtotal REAL NOT NULL,
        FOREIGN KEY(sale_id) REFERENCES sales(id),
        FOREIGN KEY(item_id) REFERENCES items(id)
    );`,
	`CREATE TABLE IF NOT EXISTS credit_accounts (
        id %[1]s,
        sale_id INTEGER NOT NULL,
        customer_name TEXT DEFAULT '',
        customer_phone TEXT DEFAULT '',
        total_amount REAL NOT NULL,
        paid_amount REAL NOT NULL DEFAULT 0,
        balance_amount REAL NOT NULL,
        status TEXT NOT NULL DEFAULT 'PENDING',
        created_at %[2]s DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY(sale_id) REFERENCES sales(id)
    );`,
	`CREATE TABLE IF NOT EXISTS credit_payments (
        id %[1]s,
        account_id INTEGER NOT NULL,
        amount REAL NOT NULL,
        method TEXT NOT NULL,
        created_at %[2]s DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY(account_id) REFERENCES credit_accounts(id)
    );`,
	`CREATE TABLE IF NOT EXISTS prescriptions (
        id %[1]s,
        patient_name TEXT NOT NULL,
        patient_phone TEXT DEFAULT '',
        diagnosis TEXT DEFAULT '',
        notes TEXT DEFAULT '',
        status TEXT NOT NULL DEFAULT 'PENDING',
        dispensed_by INTEGER,
        created_at %[2]s DEFAULT CURRENT_TIMESTAMP
    );`,
	`CREATE TABLE IF NOT EXISTS prescription_items (
        id %[1]s,
        prescription_id INTEGER NOT NULL,
        medicine_text TEXT NOT NULL,
        dosage_text TEXT DEFAULT '',
        frequency_text TEXT DEFAULT '',
        duration_text TEXT DEFAULT '',
        instructions TEXT DEFAULT '',
        FOREIGN KEY(prescription_id) REFERENCES prescriptions(id)
    );`,
}

// Run creates the database schema required for the POS backend, with the
// engine-specific column types picked from the connection's driver.
func Run(db *sqlx.DB) {
	pk, ts := "INTEGER PRIMARY KEY AUTOINCREMENT", "DATETIME"
	if db.DriverName() == "pgx" {
		pk, ts = "BIGSERIAL PRIMARY KEY", "TIMESTAMPTZ"
	}
	for _, stmt := range statements {
		if strings.Contains(stmt, "%[") {
			stmt = fmt.Sprintf(stmt, pk, ts)
		}
		if _, err := db.Exec(stmt); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
	}
}
