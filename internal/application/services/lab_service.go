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

// LabService handles the lab technician's side of the workflow. Every
// mutation re-reads the task first and applies the transition against the
// status it observed; a concurrent change turns into Conflict, never a
// silent overwrite.
type LabService struct {
	tasks   repositories.TaskRepository
	machine *workflow.Machine
	writer  *transitioner
}

// NewLabService creates a new lab service
func NewLabService(
	tasks repositories.TaskRepository,
	machine *workflow.Machine,
	bus providers.EventBus,
	metrics *observability.Metrics,
) *LabService {
	return &LabService{
		tasks:   tasks,
		machine: machine,
		writer:  &transitioner{tasks: tasks, bus: bus, metrics: metrics},
	}
}

// StartProcessing moves a pending lab task to IN_PROGRESS
func (s *LabService) StartProcessing(ctx context.Context, taskID string) (*entities.Task, error) {
	ctx, span := observability.StartSpan(ctx, "lab.start_processing")
	defer span.End()

	task, err := s.load(ctx, taskID)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	update, err := s.machine.LabStarted(task)
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

// FinalizeResult moves an in-progress lab task to DONE, recording the
// structured result in the audit trail. The result is immutable once
// written: a second finalize fails because DONE is terminal.
func (s *LabService) FinalizeResult(ctx context.Context, taskID string, result entities.LabResultValue, remarks string) (*entities.Task, error) {
	ctx, span := observability.StartSpan(ctx, "lab.finalize_result")
	defer span.End()

	task, err := s.load(ctx, taskID)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	update, err := s.machine.LabCompleted(task, result, remarks)
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

func (s *LabService) load(ctx context.Context, taskID string) (*entities.Task, error) {
	if taskID == "" {
		return nil, apperrors.NewValidationError("task id is required")
	}
	return s.tasks.GetByID(ctx, taskID)
}
