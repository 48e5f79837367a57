package entities

import (
	"time"
)

// Patient represents a person registered at reception. Demographics are
// immutable after creation; corrections are out of scope for the engine.
type Patient struct {
	ID        string    `json:"id" db:"id"`
	FullName  string    `json:"full_name" db:"full_name"`
	Age       int       `json:"age" db:"age"`
	Phone     string    `json:"phone" db:"phone"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Doctor represents a consultant that reception can assign an encounter to
type Doctor struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Department  string    `json:"department" db:"department"`
	IsAvailable bool      `json:"is_available" db:"is_available"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
