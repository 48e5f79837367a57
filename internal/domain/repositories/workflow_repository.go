package repositories

import (
	"context"

	"github.com/medflow/clinic-workflow/backend/internal/domain/entities"
)

// TokenIssuer issues unique, human-readable visit tokens. The sequence of
// issued tokens is strictly increasing with no duplicates and no gaps, even
// under concurrent callers: implementations must back Issue with an
// atomically incremented counter, never a count-then-add-one read.
type TokenIssuer interface {
	// Issue returns the next token, e.g. "E-042"
	Issue(ctx context.Context) (string, error)
}

// EncounterRepository defines encounter persistence operations
type EncounterRepository interface {
	// CreateWithPatient durably creates the patient and its encounter as one
	// atomic unit. Either both rows exist afterwards or neither does.
	CreateWithPatient(ctx context.Context, patient *entities.Patient, encounter *entities.Encounter) error

	// GetByID retrieves an encounter by ID
	GetByID(ctx context.Context, id string) (*entities.Encounter, error)

	// ListActive retrieves all active encounters with their patients,
	// newest first
	ListActive(ctx context.Context) ([]*entities.Encounter, error)

	// Complete moves an active encounter to completed. Completing an
	// encounter that is not active fails with InvalidState.
	Complete(ctx context.Context, id string) error
}

// DoctorRepository defines doctor directory operations
type DoctorRepository interface {
	// Create registers a doctor
	Create(ctx context.Context, doctor *entities.Doctor) error

	// ListByDepartment retrieves available doctors of one department
	ListByDepartment(ctx context.Context, department string) ([]*entities.Doctor, error)
}

// TaskTypeFilter selects tasks by type for queue computation. Exactly one
// of TypeContains (case-insensitive substring) or TypeEquals (exact match)
// is set; ExcludeStatus optionally drops tasks in that status.
type TaskTypeFilter struct {
	TypeContains  string
	TypeEquals    string
	ExcludeStatus entities.TaskStatus
}

// TaskRepository defines task persistence operations
type TaskRepository interface {
	// Create inserts the task and its first audit update (the implicit
	// transition into PENDING) in one transaction
	Create(ctx context.Context, task *entities.Task, first *entities.TaskUpdate) error

	// GetByID retrieves a task by ID
	GetByID(ctx context.Context, id string) (*entities.Task, error)

	// ListByEncounter retrieves all tasks of one encounter, newest first
	ListByEncounter(ctx context.Context, encounterID string) ([]*entities.Task, error)

	// ListByType retrieves tasks matching the filter, newest first, with
	// the owning encounter's token populated
	ListByType(ctx context.Context, filter TaskTypeFilter) ([]*entities.Task, error)

	// ApplyTransition advances the task's status and appends the audit
	// update in one transaction, but only if the task's current status
	// still equals observed. A stale observed value fails with Conflict
	// and leaves the task untouched.
	ApplyTransition(ctx context.Context, observed entities.TaskStatus, update *entities.TaskUpdate) error
}

// TaskUpdateRepository defines read access to the append-only audit trail
type TaskUpdateRepository interface {
	// ListByTask retrieves one task's updates, oldest first
	ListByTask(ctx context.Context, taskID string) ([]*entities.TaskUpdate, error)

	// ListAll retrieves every update across all tasks, newest first, with
	// the task title, type and encounter token populated for the timeline
	ListAll(ctx context.Context) ([]*entities.TaskUpdate, error)
}
