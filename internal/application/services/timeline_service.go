package services

import (
	"context"

	"github.com/medflow/clinic-workflow/backend/internal/domain/entities"
	"github.com/medflow/clinic-workflow/backend/internal/domain/repositories"
	"github.com/medflow/clinic-workflow/backend/internal/infrastructure/observability"
	apperrors "github.com/medflow/clinic-workflow/backend/pkg/errors"
)

// TimelineGroup is one visit's slice of the clinic-wide activity feed
type TimelineGroup struct {
	Token   string                 `json:"token"`
	Updates []*entities.TaskUpdate `json:"updates"`
}

// TimelineService assembles the clinic-wide audit feed grouped by visit
type TimelineService struct {
	updates repositories.TaskUpdateRepository
}

// NewTimelineService creates a new timeline service
func NewTimelineService(updates repositories.TaskUpdateRepository) *TimelineService {
	return &TimelineService{updates: updates}
}

// Timeline returns all task updates grouped by visit token. Visits are
// ordered by their most recent activity, newest first; inside a visit the
// updates read top to bottom in the order they happened.
func (s *TimelineService) Timeline(ctx context.Context) ([]*TimelineGroup, error) {
	ctx, span := observability.StartSpan(ctx, "timeline.feed")
	defer span.End()

	updates, err := s.updates.ListAll(ctx)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	byToken := make(map[string]*TimelineGroup)
	var groups []*TimelineGroup
	for _, update := range updates {
		group, ok := byToken[update.Token]
		if !ok {
			group = &TimelineGroup{Token: update.Token}
			byToken[update.Token] = group
			groups = append(groups, group)
		}
		// updates arrive newest first; prepend restores event order per visit
		group.Updates = append([]*entities.TaskUpdate{update}, group.Updates...)
	}
	return groups, nil
}

// TaskHistory returns one task's audit trail, oldest first
func (s *TimelineService) TaskHistory(ctx context.Context, taskID string) ([]*entities.TaskUpdate, error) {
	if taskID == "" {
		return nil, apperrors.NewValidationError("task id is required")
	}
	return s.updates.ListByTask(ctx, taskID)
}
