package services

import (
	"context"

	"github.com/medflow/clinic-workflow/backend/internal/domain/entities"
	"github.com/medflow/clinic-workflow/backend/internal/domain/providers"
	"github.com/medflow/clinic-workflow/backend/internal/domain/repositories"
	"github.com/medflow/clinic-workflow/backend/internal/domain/workflow"
	"github.com/medflow/clinic-workflow/backend/internal/infrastructure/observability"
	apperrors "github.com/medflow/clinic-workflow/backend/pkg/errors"
)

// PharmacyService handles the pharmacist's side of the workflow
type PharmacyService struct {
	tasks   repositories.TaskRepository
	machine *workflow.Machine
	writer  *transitioner
}

// NewPharmacyService creates a new pharmacy service
func NewPharmacyService(
	tasks repositories.TaskRepository,
	machine *workflow.Machine,
	bus providers.EventBus,
	metrics *observability.Metrics,
) *PharmacyService {
	return &PharmacyService{
		tasks:   tasks,
		machine: machine,
		writer:  &transitioner{tasks: tasks, bus: bus, metrics: metrics},
	}
}

// MarkReady moves a pending dispense task to IN_PROGRESS, signalling the
// medication is prepared and waiting for pickup
func (s *PharmacyService) MarkReady(ctx context.Context, taskID string) (*entities.Task, error) {
	ctx, span := observability.StartSpan(ctx, "pharmacy.mark_ready")
	defer span.End()

	task, err := s.load(ctx, taskID)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	update, err := s.machine.PharmacyReady(task)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	if err := s.writer.apply(ctx, task, update); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	task.Status = update.Status
	return task, nil
}

// ConfirmDispense moves an in-progress dispense task to DONE, after which
// it leaves the pharmacy queue
func (s *PharmacyService) ConfirmDispense(ctx context.Context, taskID string) (*entities.Task, error) {
	ctx, span := observability.StartSpan(ctx, "pharmacy.confirm_dispense")
	defer span.End()

	task, err := s.load(ctx, taskID)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	update, err := s.machine.PharmacyCompleted(task)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	if err := s.writer.apply(ctx, task, update); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	task.Status = update.Status
	return task, nil
}

func (s *PharmacyService) load(ctx context.Context, taskID string) (*entities.Task, error) {
	if taskID == "" {
		return nil, apperrors.NewValidationError("task id is required")
	}
	return s.tasks.GetByID(ctx, taskID)
}
