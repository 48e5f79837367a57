package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/medflow/clinic-workflow/backend/internal/domain/entities"
	"github.com/medflow/clinic-workflow/backend/internal/domain/providers"
	"github.com/medflow/clinic-workflow/backend/internal/domain/repositories"
	"github.com/medflow/clinic-workflow/backend/internal/domain/workflow"
	"github.com/medflow/clinic-workflow/backend/internal/infrastructure/observability"
	apperrors "github.com/medflow/clinic-workflow/backend/pkg/errors"
)

// OrderRequest carries a doctor's order form
type OrderRequest struct {
	EncounterID string `json:"encounter_id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	AssignedTo  string `json:"assigned_to"`
}

// TaskDetail is one task with its full audit history for the doctor panel.
// Report carries the re-rendered lab result of the latest DONE lab update,
// empty when the task has produced none.
type TaskDetail struct {
	Task    *entities.Task         `json:"task"`
	Updates []*entities.TaskUpdate `json:"updates"`
	Report  string                 `json:"report,omitempty"`
}

// EncounterDetail is the doctor panel view of one visit
type EncounterDetail struct {
	Encounter *entities.Encounter `json:"encounter"`
	Tasks     []*TaskDetail       `json:"tasks"`
}

// OrderingService handles the doctor's side of the workflow: placing
// orders, reviewing an encounter's tasks and results, closing the visit.
type OrderingService struct {
	encounters repositories.EncounterRepository
	tasks      repositories.TaskRepository
	updates    repositories.TaskUpdateRepository
	machine    *workflow.Machine
	writer     *transitioner
	bus        providers.EventBus
	metrics    *observability.Metrics
}

// NewOrderingService creates a new ordering service
func NewOrderingService(
	encounters repositories.EncounterRepository,
	tasks repositories.TaskRepository,
	updates repositories.TaskUpdateRepository,
	machine *workflow.Machine,
	bus providers.EventBus,
	metrics *observability.Metrics,
) *OrderingService {
	return &OrderingService{
		encounters: encounters,
		tasks:      tasks,
		updates:    updates,
		machine:    machine,
		writer:     &transitioner{tasks: tasks, bus: bus, metrics: metrics},
		bus:        bus,
		metrics:    metrics,
	}
}

// PlaceOrder creates a task on an active encounter. The task starts in
// PENDING with its first audit update recording who ordered what; both rows
// land in one transaction.
func (s *OrderingService) PlaceOrder(ctx context.Context, req *OrderRequest) (*entities.Task, error) {
	ctx, span := observability.StartSpan(ctx, "ordering.place_order")
	defer span.End()

	if err := validateOrder(req); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	task := &entities.Task{
		ID:          uuid.New().String(),
		EncounterID: req.EncounterID,
		Type:        req.Type,
		Title:       req.Title,
		AssignedTo:  req.AssignedTo,
		Status:      entities.TaskStatusPending,
		CreatedAt:   time.Now(),
	}
	first := s.machine.OrderPlaced(task)

	if err := s.tasks.Create(ctx, task, first); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	log.Info().
		Str("task_id", task.ID).
		Str("encounter_id", task.EncounterID).
		Str("type", task.Type).
		Msg("order placed")

	s.writer.announce(ctx, task, entities.WorkflowEventTypeTaskCreated)
	return task, nil
}

// DoctorPanel assembles one encounter's full view: the patient, every task
// newest first, each task's history oldest first, and lab results
// re-rendered as reports.
func (s *OrderingService) DoctorPanel(ctx context.Context, encounterID string) (*EncounterDetail, error) {
	ctx, span := observability.StartSpan(ctx, "ordering.doctor_panel")
	defer span.End()

	if encounterID == "" {
		return nil, apperrors.NewValidationError("encounter id is required")
	}

	encounter, err := s.encounters.GetByID(ctx, encounterID)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	tasks, err := s.tasks.ListByEncounter(ctx, encounterID)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	detail := &EncounterDetail{
		Encounter: encounter,
		Tasks:     make([]*TaskDetail, 0, len(tasks)),
	}
	for _, task := range tasks {
		updates, err := s.updates.ListByTask(ctx, task.ID)
		if err != nil {
			observability.RecordError(span, err)
			return nil, err
		}
		detail.Tasks = append(detail.Tasks, &TaskDetail{
			Task:    task,
			Updates: updates,
			Report:  latestReport(updates),
		})
	}
	return detail, nil
}

// CompleteEncounter closes an active visit. Tasks still in flight keep
// their state; the encounter just leaves the active roster.
func (s *OrderingService) CompleteEncounter(ctx context.Context, encounterID string) error {
	ctx, span := observability.StartSpan(ctx, "ordering.complete_encounter")
	defer span.End()

	if encounterID == "" {
		return apperrors.NewValidationError("encounter id is required")
	}

	if err := s.encounters.Complete(ctx, encounterID); err != nil {
		observability.RecordError(span, err)
		return err
	}

	log.Info().Str("encounter_id", encounterID).Msg("encounter completed")

	event := entities.NewWorkflowEvent(encounterID, entities.WorkflowEventTypeEncounterCompleted)
	if err := s.bus.Publish(ctx, providers.TopicEncounters, event); err != nil {
		log.Warn().Err(err).Str("encounter_id", encounterID).Msg("failed to publish encounter event")
	} else if s.metrics != nil {
		s.metrics.EventsPublished.Add(ctx, 1)
	}
	return nil
}

func validateOrder(req *OrderRequest) error {
	if req == nil {
		return apperrors.NewValidationError("order request is required")
	}
	if req.EncounterID == "" {
		return apperrors.NewValidationError("encounter id is required")
	}
	if req.Type == "" {
		return apperrors.NewValidationError("task type is required")
	}
	if req.Title == "" {
		return apperrors.NewValidationError("task title is required")
	}
	return nil
}

// latestReport returns the report of the newest lab result in the task's
// history, scanning updates oldest first
func latestReport(updates []*entities.TaskUpdate) string {
	report := ""
	for _, u := range updates {
		if u.IsLabResult() {
			report = u.LabReport()
		}
	}
	return report
}
