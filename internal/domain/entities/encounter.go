package entities

import (
	"time"
)

// EncounterStatus represents the lifecycle state of a visit
type EncounterStatus string

const (
	EncounterStatusActive    EncounterStatus = "active"
	EncounterStatusCompleted EncounterStatus = "completed"
)

// Encounter represents one patient visit, from intake to completion.
// The token is assigned exactly once at creation and never reassigned.
type Encounter struct {
	ID         string          `json:"id" db:"id"`
	PatientID  string          `json:"patient_id" db:"patient_id"`
	Token      string          `json:"token" db:"token"`
	Status     EncounterStatus `json:"status" db:"status"`
	Department string          `json:"department" db:"department"`
	DoctorID   *string         `json:"doctor_id,omitempty" db:"doctor_id"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`

	// Patient is populated by joined reads, not persisted on this row
	Patient *Patient `json:"patient,omitempty" db:"-"`
}

// IsActive reports whether the encounter still accepts new tasks
func (e *Encounter) IsActive() bool {
	return e.Status == EncounterStatusActive
}
