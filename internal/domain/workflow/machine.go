// Package workflow holds the task status state machine. The machine
// validates transitions and constructs the audit updates they emit; it
// persists nothing. The compare-and-swap append in the store is where a
// race between two operators is actually resolved.
package workflow

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medflow/clinic-workflow/backend/internal/domain/entities"
	apperrors "github.com/medflow/clinic-workflow/backend/pkg/errors"
)

// Machine enforces the PENDING -> IN_PROGRESS -> DONE order, exactly one
// forward step per call
type Machine struct{}

// NewMachine creates a new status machine
func NewMachine() *Machine {
	return &Machine{}
}

// Validate checks that target is the single legal successor of current.
// Re-applying the current status is rejected: an operator retrying blindly
// has to re-read state instead.
func (m *Machine) Validate(current, target entities.TaskStatus) error {
	if !current.Valid() {
		return apperrors.NewFatalError(fmt.Sprintf("task holds unknown status %q", current), nil)
	}
	if !target.Valid() {
		return apperrors.NewInvalidTransitionError(fmt.Sprintf("unknown target status %q", target))
	}
	next, ok := current.Next()
	if !ok {
		return apperrors.NewInvalidTransitionError(fmt.Sprintf("%s is terminal, no transition to %s", current, target))
	}
	if target != next {
		return apperrors.NewInvalidTransitionError(fmt.Sprintf("cannot move %s -> %s, next legal status is %s", current, target, next))
	}
	return nil
}

// OrderPlaced builds the first update of a freshly created task: the
// implicit transition into PENDING, authored by the ordering doctor.
func (m *Machine) OrderPlaced(task *entities.Task) *entities.TaskUpdate {
	return m.newUpdate(task.ID, entities.TaskStatusPending, entities.ActorRoleDoctor,
		fmt.Sprintf("Doctor ordered: %s", task.Title))
}

// LabStarted builds the IN_PROGRESS update for a lab task
func (m *Machine) LabStarted(task *entities.Task) (*entities.TaskUpdate, error) {
	if err := m.Validate(task.Status, entities.TaskStatusInProgress); err != nil {
		return nil, err
	}
	return m.newUpdate(task.ID, entities.TaskStatusInProgress, entities.ActorRoleLab,
		fmt.Sprintf("Lab sample processing: %s", task.Title)), nil
}

// LabCompleted builds the DONE update for a lab task, encoding the
// structured result into the message payload.
func (m *Machine) LabCompleted(task *entities.Task, result entities.LabResultValue, remarks string) (*entities.TaskUpdate, error) {
	if !result.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown lab result %q", result))
	}
	if err := m.Validate(task.Status, entities.TaskStatusDone); err != nil {
		return nil, err
	}
	return m.newUpdate(task.ID, entities.TaskStatusDone, entities.ActorRoleLab,
		entities.EncodeLabResult(result, remarks)), nil
}

// PharmacyReady builds the IN_PROGRESS update for a pharmacy task
func (m *Machine) PharmacyReady(task *entities.Task) (*entities.TaskUpdate, error) {
	if err := m.Validate(task.Status, entities.TaskStatusInProgress); err != nil {
		return nil, err
	}
	return m.newUpdate(task.ID, entities.TaskStatusInProgress, entities.ActorRolePharmacy,
		fmt.Sprintf("Pharmacy Dispense: %s ready", task.Title)), nil
}

// PharmacyCompleted builds the DONE update for a pharmacy task
func (m *Machine) PharmacyCompleted(task *entities.Task) (*entities.TaskUpdate, error) {
	if err := m.Validate(task.Status, entities.TaskStatusDone); err != nil {
		return nil, err
	}
	return m.newUpdate(task.ID, entities.TaskStatusDone, entities.ActorRolePharmacy,
		fmt.Sprintf("Pharmacy Dispense: %s completed", task.Title)), nil
}

// WorkStarted builds a generic IN_PROGRESS update for task types without
// a dedicated department phrasing
func (m *Machine) WorkStarted(task *entities.Task, actor entities.ActorRole) (*entities.TaskUpdate, error) {
	if err := m.Validate(task.Status, entities.TaskStatusInProgress); err != nil {
		return nil, err
	}
	return m.newUpdate(task.ID, entities.TaskStatusInProgress, actor,
		fmt.Sprintf("Work started: %s", task.Title)), nil
}

// WorkCompleted builds a generic DONE update
func (m *Machine) WorkCompleted(task *entities.Task, actor entities.ActorRole) (*entities.TaskUpdate, error) {
	if err := m.Validate(task.Status, entities.TaskStatusDone); err != nil {
		return nil, err
	}
	return m.newUpdate(task.ID, entities.TaskStatusDone, actor,
		fmt.Sprintf("Completed: %s", task.Title)), nil
}

func (m *Machine) newUpdate(taskID string, status entities.TaskStatus, actor entities.ActorRole, message string) *entities.TaskUpdate {
	return &entities.TaskUpdate{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		Message:   message,
		UpdatedBy: actor,
		Status:    status,
		CreatedAt: time.Now(),
	}
}
