package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"

	"github.com/medflow/clinic-workflow/backend/internal/domain/entities"
	"github.com/medflow/clinic-workflow/backend/internal/domain/repositories"
	"github.com/medflow/clinic-workflow/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/medflow/clinic-workflow/backend/pkg/errors"
)

// TaskAdapter implements the TaskRepository interface
type TaskAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewTaskAdapter creates a new task adapter
func NewTaskAdapter(client *postgres.Client) repositories.TaskRepository {
	return &TaskAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Create inserts the task and its first audit update in one transaction.
// The owning encounter's status is re-checked inside the transaction so a
// concurrent completion cannot slip an order into a closed visit.
func (a *TaskAdapter) Create(ctx context.Context, task *entities.Task, first *entities.TaskUpdate) error {
	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return wrapDBError("failed to begin task transaction", err)
	}
	defer tx.Rollback()

	statusQuery, statusArgs, err := a.db.Select("status").From("encounters").
		Where(goqu.Ex{"id": task.EncounterID}).
		ForUpdate(goqu.Wait).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build encounter status query", err)
	}

	var encounterStatus entities.EncounterStatus
	err = tx.QueryRowContext(ctx, statusQuery, statusArgs...).Scan(&encounterStatus)
	if err == sql.ErrNoRows {
		return apperrors.NewNotFoundError(fmt.Sprintf("encounter with id %s not found", task.EncounterID))
	}
	if err != nil {
		return wrapDBError("failed to check encounter status", err)
	}
	if encounterStatus != entities.EncounterStatusActive {
		return apperrors.NewInvalidStateError(fmt.Sprintf("encounter %s is not active", task.EncounterID))
	}

	taskQuery, taskArgs, err := a.db.Insert("tasks").Rows(goqu.Record{
		"id":           task.ID,
		"encounter_id": task.EncounterID,
		"type":         task.Type,
		"title":        task.Title,
		"assigned_to":  task.AssignedTo,
		"status":       task.Status,
		"created_at":   task.CreatedAt,
	}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build task insert", err)
	}

	if _, err := tx.ExecContext(ctx, taskQuery, taskArgs...); err != nil {
		return wrapDBError("failed to create task", err)
	}

	updateQuery, updateArgs, err := a.db.Insert("task_updates").Rows(updateRecord(first)).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build task update insert", err)
	}

	if _, err := tx.ExecContext(ctx, updateQuery, updateArgs...); err != nil {
		return wrapDBError("failed to append task update", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapDBError("failed to commit task transaction", err)
	}

	return nil
}

// GetByID retrieves a task by ID
func (a *TaskAdapter) GetByID(ctx context.Context, id string) (*entities.Task, error) {
	query, args, err := a.db.Select(
		"id", "encounter_id", "type", "title", "assigned_to", "status", "created_at",
	).From("tasks").
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build task query", err)
	}

	task := &entities.Task{}
	err = a.client.DB().QueryRowContext(ctx, query, args...).Scan(
		&task.ID,
		&task.EncounterID,
		&task.Type,
		&task.Title,
		&task.AssignedTo,
		&task.Status,
		&task.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("task with id %s not found", id))
	}
	if err != nil {
		return nil, wrapDBError("failed to get task", err)
	}

	return task, nil
}

// ListByEncounter retrieves all tasks of one encounter, newest first
func (a *TaskAdapter) ListByEncounter(ctx context.Context, encounterID string) ([]*entities.Task, error) {
	ds := a.db.Select(
		goqu.I("t.id"), goqu.I("t.encounter_id"), goqu.I("t.type"), goqu.I("t.title"),
		goqu.I("t.assigned_to"), goqu.I("t.status"), goqu.I("t.created_at"), goqu.I("e.token"),
	).From(goqu.T("tasks").As("t")).
		Join(goqu.T("encounters").As("e"), goqu.On(goqu.Ex{"e.id": goqu.I("t.encounter_id")})).
		Where(goqu.Ex{"t.encounter_id": encounterID}).
		Order(goqu.I("t.created_at").Desc())

	return a.listTasks(ctx, ds)
}

// ListByType retrieves tasks matching the filter, newest first
func (a *TaskAdapter) ListByType(ctx context.Context, filter repositories.TaskTypeFilter) ([]*entities.Task, error) {
	ds := a.db.Select(
		goqu.I("t.id"), goqu.I("t.encounter_id"), goqu.I("t.type"), goqu.I("t.title"),
		goqu.I("t.assigned_to"), goqu.I("t.status"), goqu.I("t.created_at"), goqu.I("e.token"),
	).From(goqu.T("tasks").As("t")).
		Join(goqu.T("encounters").As("e"), goqu.On(goqu.Ex{"e.id": goqu.I("t.encounter_id")}))

	if filter.TypeContains != "" {
		ds = ds.Where(goqu.I("t.type").ILike("%" + filter.TypeContains + "%"))
	}
	if filter.TypeEquals != "" {
		ds = ds.Where(goqu.Ex{"t.type": filter.TypeEquals})
	}
	if filter.ExcludeStatus != "" {
		ds = ds.Where(goqu.I("t.status").Neq(filter.ExcludeStatus))
	}

	ds = ds.Order(goqu.I("t.created_at").Desc())

	return a.listTasks(ctx, ds)
}

// ApplyTransition advances the task's status and appends the audit update
// in one transaction. The status update is conditional on the status the
// caller last observed: if another operator advanced the task in between,
// zero rows match, nothing is written and the caller gets Conflict.
func (a *TaskAdapter) ApplyTransition(ctx context.Context, observed entities.TaskStatus, update *entities.TaskUpdate) error {
	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return wrapDBError("failed to begin transition transaction", err)
	}
	defer tx.Rollback()

	casQuery, casArgs, err := a.db.Update("tasks").
		Set(goqu.Record{"status": update.Status}).
		Where(goqu.Ex{"id": update.TaskID, "status": observed}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build transition query", err)
	}

	result, err := tx.ExecContext(ctx, casQuery, casArgs...)
	if err != nil {
		return wrapDBError("failed to apply transition", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}

	if rowsAffected == 0 {
		// Distinguish a missing task from a stale observed status
		current, err := a.GetByID(ctx, update.TaskID)
		if err != nil {
			return err
		}
		return apperrors.NewConflictError(fmt.Sprintf(
			"task %s is %s, not %s as observed", update.TaskID, current.Status, observed))
	}

	updateQuery, updateArgs, err := a.db.Insert("task_updates").Rows(updateRecord(update)).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build task update insert", err)
	}

	if _, err := tx.ExecContext(ctx, updateQuery, updateArgs...); err != nil {
		return wrapDBError("failed to append task update", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapDBError("failed to commit transition transaction", err)
	}

	return nil
}

func (a *TaskAdapter) listTasks(ctx context.Context, ds *goqu.SelectDataset) ([]*entities.Task, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build tasks query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("failed to list tasks", err)
	}
	defer rows.Close()

	var tasks []*entities.Task
	for rows.Next() {
		task := &entities.Task{}
		if err := rows.Scan(
			&task.ID,
			&task.EncounterID,
			&task.Type,
			&task.Title,
			&task.AssignedTo,
			&task.Status,
			&task.CreatedAt,
			&task.Token,
		); err != nil {
			return nil, apperrors.NewInternalError("failed to scan task", err)
		}
		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

func updateRecord(update *entities.TaskUpdate) goqu.Record {
	return goqu.Record{
		"id":         update.ID,
		"task_id":    update.TaskID,
		"message":    update.Message,
		"updated_by": update.UpdatedBy,
		"status":     update.Status,
		"created_at": update.CreatedAt,
	}
}
