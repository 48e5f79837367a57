package services

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/medflow/clinic-workflow/backend/internal/domain/entities"
	"github.com/medflow/clinic-workflow/backend/internal/domain/providers"
	"github.com/medflow/clinic-workflow/backend/internal/domain/repositories"
	"github.com/medflow/clinic-workflow/backend/internal/infrastructure/observability"
	apperrors "github.com/medflow/clinic-workflow/backend/pkg/errors"
)

// transitioner is the shared write path for task status changes. It applies
// the machine-built update against the status the caller observed, so a
// racing operator loses with Conflict instead of silently overwriting.
type transitioner struct {
	tasks   repositories.TaskRepository
	bus     providers.EventBus
	metrics *observability.Metrics
}

// apply persists the transition and announces it. The observed status is
// taken from the task snapshot the machine validated against.
func (t *transitioner) apply(ctx context.Context, task *entities.Task, update *entities.TaskUpdate) error {
	if err := t.tasks.ApplyTransition(ctx, task.Status, update); err != nil {
		if apperrors.IsConflict(err) {
			observability.RecordConflict(ctx, t.metrics, string(task.Status))
			log.Info().
				Str("task_id", task.ID).
				Str("observed", string(task.Status)).
				Msg("transition lost race, caller must re-read")
		}
		return err
	}

	observability.RecordTransition(ctx, t.metrics, string(task.Status), string(update.Status))
	log.Info().
		Str("task_id", task.ID).
		Str("from", string(task.Status)).
		Str("to", string(update.Status)).
		Str("actor", string(update.UpdatedBy)).
		Msg("task transition applied")

	t.announce(ctx, task, entities.WorkflowEventTypeTaskUpdated)
	return nil
}

// announce publishes the change to the shared task-update stream and the
// encounter-scoped stream. Best effort after the commit.
func (t *transitioner) announce(ctx context.Context, task *entities.Task, eventType entities.WorkflowEventType) {
	topics := []string{providers.TopicTaskUpdates, providers.EncounterTaskTopic(task.EncounterID)}
	if eventType == entities.WorkflowEventTypeTaskCreated {
		topics[0] = providers.TopicTasks
	}

	for _, topic := range topics {
		event := entities.NewWorkflowEvent(task.ID, eventType)
		if err := t.bus.Publish(ctx, topic, event); err != nil {
			log.Warn().Err(err).Str("task_id", task.ID).Str("topic", topic).
				Msg("failed to publish task event")
			continue
		}
		if t.metrics != nil {
			t.metrics.EventsPublished.Add(ctx, 1)
		}
	}
}
