package prescription

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"dawapos/m/domain"
)

// ErrNotFound means no prescription matches the given id.
var ErrNotFound = errors.New("prescription not found")

// Store persists prescriptions and their free-text items.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Create saves a prescription with its items and returns its id.
func (s *Store) Create(ctx context.Context, p *domain.Prescription) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prescription create: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO prescriptions (patient_name, patient_phone, diagnosis, notes, status)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		p.PatientName, p.PatientPhone, p.Diagnosis, p.Notes, domain.PrescriptionPending).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert prescription: %w", err)
	}

	for _, item := range p.Items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO prescription_items (prescription_id, medicine_text, dosage_text, frequency_text, duration_text, instructions)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			id, item.MedicineText, item.DosageText, item.FrequencyText, item.DurationText, item.Instructions); err != nil {
			return 0, fmt.Errorf("insert prescription item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prescription create: %w", err)
	}
	return id, nil
}

// Get loads one prescription with its items.
func (s *Store) Get(ctx context.Context, id int64) (*domain.Prescription, error) {
	var p domain.Prescription
	err := s.db.GetContext(ctx, &p,
		`SELECT id, patient_name, patient_phone, diagnosis, notes, status, dispensed_by, created_at
		 FROM prescriptions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load prescription %d: %w", id, err)
	}
	if err := s.db.SelectContext(ctx, &p.Items,
		`SELECT id, prescription_id, medicine_text, dosage_text, frequency_text, duration_text, instructions
		 FROM prescription_items WHERE prescription_id = $1 ORDER BY id`, id); err != nil {
		return nil, fmt.Errorf("load prescription items %d: %w", id, err)
	}
	return &p, nil
}

// ListPending returns undisposed prescriptions, oldest first, items included.
func (s *Store) ListPending(ctx context.Context) ([]domain.Prescription, error) {
	var pending []domain.Prescription
	if err := s.db.SelectContext(ctx, &pending,
		`SELECT id, patient_name, patient_phone, diagnosis, notes, status, dispensed_by, created_at
		 FROM prescriptions WHERE status = $1 ORDER BY id`, domain.PrescriptionPending); err != nil {
		return nil, fmt.Errorf("list pending prescriptions: %w", err)
	}
	for i := range pending {
		if err := s.db.SelectContext(ctx, &pending[i].Items,
			`SELECT id, prescription_id, medicine_text, dosage_text, frequency_text, duration_text, instructions
			 FROM prescription_items WHERE prescription_id = $1 ORDER BY id`, pending[i].ID); err != nil {
			return nil, fmt.Errorf("list prescription items: %w", err)
		}
	}
	return pending, nil
}

// MarkDispensed records who fulfilled the prescription.
func (s *Store) MarkDispensed(ctx context.Context, id, dispensedBy int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE prescriptions SET status = $1, dispensed_by = $2 WHERE id = $3`,
		domain.PrescriptionDispensed, dispensedBy, id)
	if err != nil {
		return fmt.Errorf("mark prescription %d dispensed: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
