package database

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/medflow/clinic-workflow/backend/internal/domain/entities"
	"github.com/medflow/clinic-workflow/backend/internal/domain/repositories"
	"github.com/medflow/clinic-workflow/backend/internal/infrastructure/clients/postgres"
)

// TaskUpdateAdapter implements read access to the append-only audit trail.
// Writes to task_updates only happen inside TaskAdapter transactions; this
// adapter covers the timeline and per-task history reads, where sqlx keeps
// the three-way join manageable.
type TaskUpdateAdapter struct {
	db *sqlx.DB
}

// NewTaskUpdateAdapter creates a new task update adapter
func NewTaskUpdateAdapter(client *postgres.Client) repositories.TaskUpdateRepository {
	return &TaskUpdateAdapter{
		db: sqlx.NewDb(client.DB(), "postgres"),
	}
}

type taskUpdateRow struct {
	ID        string    `db:"id"`
	TaskID    string    `db:"task_id"`
	Message   string    `db:"message"`
	UpdatedBy string    `db:"updated_by"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	TaskTitle string    `db:"task_title"`
	TaskType  string    `db:"task_type"`
	Token     string    `db:"token"`
}

// ListByTask retrieves one task's updates, oldest first
func (a *TaskUpdateAdapter) ListByTask(ctx context.Context, taskID string) ([]*entities.TaskUpdate, error) {
	const query = `
		SELECT u.id, u.task_id, u.message, u.updated_by, u.status, u.created_at,
		       t.title AS task_title, t.type AS task_type, e.token
		FROM task_updates u
		JOIN tasks t ON t.id = u.task_id
		JOIN encounters e ON e.id = t.encounter_id
		WHERE u.task_id = $1
		ORDER BY u.created_at ASC`

	var rows []taskUpdateRow
	if err := a.db.SelectContext(ctx, &rows, query, taskID); err != nil {
		return nil, wrapDBError("failed to list task updates", err)
	}

	return toUpdates(rows), nil
}

// ListAll retrieves every update across all tasks, newest first
func (a *TaskUpdateAdapter) ListAll(ctx context.Context) ([]*entities.TaskUpdate, error) {
	const query = `
		SELECT u.id, u.task_id, u.message, u.updated_by, u.status, u.created_at,
		       t.title AS task_title, t.type AS task_type, e.token
		FROM task_updates u
		JOIN tasks t ON t.id = u.task_id
		JOIN encounters e ON e.id = t.encounter_id
		ORDER BY u.created_at DESC`

	var rows []taskUpdateRow
	if err := a.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, wrapDBError("failed to list all task updates", err)
	}

	return toUpdates(rows), nil
}

func toUpdates(rows []taskUpdateRow) []*entities.TaskUpdate {
	updates := make([]*entities.TaskUpdate, 0, len(rows))
	for _, row := range rows {
		updates = append(updates, &entities.TaskUpdate{
			ID:        row.ID,
			TaskID:    row.TaskID,
			Message:   row.Message,
			UpdatedBy: entities.ActorRole(row.UpdatedBy),
			Status:    entities.TaskStatus(row.Status),
			CreatedAt: row.CreatedAt,
			TaskTitle: row.TaskTitle,
			TaskType:  row.TaskType,
			Token:     row.Token,
		})
	}
	return updates
}
