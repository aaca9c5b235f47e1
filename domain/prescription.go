package domain

type PrescriptionStatus string

const (
	PrescriptionPending   PrescriptionStatus = "PENDING"
	PrescriptionDispensed PrescriptionStatus = "DISPENSED"
)

type Prescription struct {
	ID           int64              `db:"id" json:"id"`
	PatientName  string             `db:"patient_name" json:"patient_name"`
	PatientPhone string             `db:"patient_phone" json:"patient_phone"`
	Diagnosis    string             `db:"diagnosis" json:"diagnosis"`
	Notes        string             `db:"notes" json:"notes"`
	Status       PrescriptionStatus `db:"status" json:"status"`
	DispensedBy  *int64             `db:"dispensed_by" json:"dispensed_by,omitempty"`
	CreatedAt    string             `db:"created_at" json:"created_at"`

	Items []PrescriptionItem `db:"-" json:"items,omitempty"`
}

// PrescriptionItem carries the prescriber's free text; parsing it into
// quantities is best-effort, not clinical validation.
type PrescriptionItem struct {
	ID             int64  `db:"id" json:"id"`
	PrescriptionID int64  `db:"prescription_id" json:"prescription_id"`
	MedicineText   string `db:"medicine_text" json:"medicine_text"`
	DosageText     string `db:"dosage_text" json:"dosage_text"`
	FrequencyText  string `db:"frequency_text" json:"frequency_text"`
	DurationText   string `db:"duration_text" json:"duration_text"`
	Instructions   string `db:"instructions" json:"instructions"`
}
