package services

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/medflow/clinic-workflow/backend/internal/domain/entities"
	"github.com/medflow/clinic-workflow/backend/internal/domain/repositories"
	"github.com/medflow/clinic-workflow/backend/internal/infrastructure/observability"
	apperrors "github.com/medflow/clinic-workflow/backend/pkg/errors"
)

// QueueRules are the membership predicates routing tasks into role queues.
// They are configuration, not code: a clinic renaming its task types
// adjusts these without a deploy.
type QueueRules struct {
	// LabTypeContains routes a task whose type contains this substring,
	// case-insensitively, into the lab queue
	LabTypeContains string

	// PharmacyTypeEquals routes a task whose type equals this exactly into
	// the pharmacy queue
	PharmacyTypeEquals string
}

// QueueEntry is one task in a role queue. Ambiguous marks a task whose type
// matches more than one queue's predicate; it still appears in both queues,
// flagged so an operator notices the misconfigured type.
type QueueEntry struct {
	Task      *entities.Task `json:"task"`
	Ambiguous bool           `json:"ambiguous,omitempty"`
}

// QueueService computes the role work queues. Queues are derived views over
// the task store, recomputed on demand; a notification only tells a panel
// to call here again.
type QueueService struct {
	tasks   repositories.TaskRepository
	rules   QueueRules
	metrics *observability.Metrics
}

// NewQueueService creates a new queue service
func NewQueueService(tasks repositories.TaskRepository, rules QueueRules, metrics *observability.Metrics) (*QueueService, error) {
	if rules.LabTypeContains == "" {
		return nil, apperrors.NewValidationError("lab queue predicate is required")
	}
	if rules.PharmacyTypeEquals == "" {
		return nil, apperrors.NewValidationError("pharmacy queue predicate is required")
	}
	return &QueueService{
		tasks:   tasks,
		rules:   rules,
		metrics: metrics,
	}, nil
}

// LabQueue returns every lab task regardless of status, newest first. DONE
// tasks stay visible so technicians can review finished work.
func (s *QueueService) LabQueue(ctx context.Context) ([]*QueueEntry, error) {
	ctx, span := observability.StartSpan(ctx, "queues.lab")
	defer span.End()

	tasks, err := s.tasks.ListByType(ctx, repositories.TaskTypeFilter{
		TypeContains: s.rules.LabTypeContains,
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	s.recordRefresh(ctx)
	return s.annotate(tasks), nil
}

// PharmacyQueue returns pharmacy tasks that are not yet DONE, newest first.
// Dispensed orders drop off the queue immediately.
func (s *QueueService) PharmacyQueue(ctx context.Context) ([]*QueueEntry, error) {
	ctx, span := observability.StartSpan(ctx, "queues.pharmacy")
	defer span.End()

	tasks, err := s.tasks.ListByType(ctx, repositories.TaskTypeFilter{
		TypeEquals:    s.rules.PharmacyTypeEquals,
		ExcludeStatus: entities.TaskStatusDone,
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	s.recordRefresh(ctx)
	return s.annotate(tasks), nil
}

// annotate wraps tasks as queue entries, flagging any whose type satisfies
// both queue predicates
func (s *QueueService) annotate(tasks []*entities.Task) []*QueueEntry {
	entries := make([]*QueueEntry, 0, len(tasks))
	for _, task := range tasks {
		ambiguous := s.matchesLab(task.Type) && s.matchesPharmacy(task.Type)
		if ambiguous {
			log.Warn().
				Str("task_id", task.ID).
				Str("type", task.Type).
				Msg("task type matches both queue predicates")
		}
		entries = append(entries, &QueueEntry{Task: task, Ambiguous: ambiguous})
	}
	return entries
}

func (s *QueueService) matchesLab(taskType string) bool {
	return strings.Contains(strings.ToLower(taskType), strings.ToLower(s.rules.LabTypeContains))
}

func (s *QueueService) matchesPharmacy(taskType string) bool {
	return taskType == s.rules.PharmacyTypeEquals
}

func (s *QueueService) recordRefresh(ctx context.Context) {
	if s.metrics != nil {
		s.metrics.QueueRefreshes.Add(ctx, 1)
	}
}
