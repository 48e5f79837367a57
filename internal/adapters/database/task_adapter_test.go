package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medflow/clinic-workflow/backend/internal/domain/entities"
	"github.com/medflow/clinic-workflow/backend/internal/domain/repositories"
	apperrors "github.com/medflow/clinic-workflow/backend/pkg/errors"
)

func sampleTask() (*entities.Task, *entities.TaskUpdate) {
	task := &entities.Task{
		ID:          "task-1",
		EncounterID: "enc-1",
		Type:        "Lab Test",
		Title:       "Blood Test",
		AssignedTo:  "lab-1",
		Status:      entities.TaskStatusPending,
		CreatedAt:   time.Now(),
	}
	first := &entities.TaskUpdate{
		ID:        "upd-1",
		TaskID:    task.ID,
		Message:   "Doctor ordered: Blood Test",
		UpdatedBy: entities.ActorRoleDoctor,
		Status:    entities.TaskStatusPending,
		CreatedAt: task.CreatedAt,
	}
	return task, first
}

func TestTaskAdapter_Create(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewTaskAdapter(client)
	task, first := sampleTask()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT "status" FROM "encounters"`).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("active"))
	mock.ExpectExec(`INSERT INTO "tasks"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "task_updates"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := adapter.Create(context.Background(), task, first)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskAdapter_Create_CompletedEncounter(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewTaskAdapter(client)
	task, first := sampleTask()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT "status" FROM "encounters"`).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("completed"))
	mock.ExpectRollback()

	err := adapter.Create(context.Background(), task, first)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidState))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskAdapter_Create_MissingEncounter(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewTaskAdapter(client)
	task, first := sampleTask()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT "status" FROM "encounters"`).
		WillReturnRows(sqlmock.NewRows([]string{"status"}))
	mock.ExpectRollback()

	err := adapter.Create(context.Background(), task, first)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestTaskAdapter_ApplyTransition(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewTaskAdapter(client)

	update := &entities.TaskUpdate{
		ID:        "upd-2",
		TaskID:    "task-1",
		Message:   "Lab sample processing: Blood Test",
		UpdatedBy: entities.ActorRoleLab,
		Status:    entities.TaskStatusInProgress,
		CreatedAt: time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "tasks" SET "status"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "task_updates"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := adapter.ApplyTransition(context.Background(), entities.TaskStatusPending, update)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskAdapter_ApplyTransition_StaleObserved(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewTaskAdapter(client)

	update := &entities.TaskUpdate{
		ID:     "upd-2",
		TaskID: "task-1",
		Status: entities.TaskStatusInProgress,
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "tasks" SET "status"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	// zero rows matched: the adapter re-reads to tell conflict from missing
	mock.ExpectQuery(`SELECT .* FROM "tasks"`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "encounter_id", "type", "title", "assigned_to", "status", "created_at",
		}).AddRow("task-1", "enc-1", "Lab Test", "Blood Test", "lab-1", "IN_PROGRESS", time.Now()))
	mock.ExpectRollback()

	err := adapter.ApplyTransition(context.Background(), entities.TaskStatusPending, update)
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Contains(t, err.Error(), "IN_PROGRESS")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskAdapter_ApplyTransition_MissingTask(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewTaskAdapter(client)

	update := &entities.TaskUpdate{
		ID:     "upd-2",
		TaskID: "task-9",
		Status: entities.TaskStatusInProgress,
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "tasks" SET "status"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .* FROM "tasks"`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "encounter_id", "type", "title", "assigned_to", "status", "created_at",
		}))
	mock.ExpectRollback()

	err := adapter.ApplyTransition(context.Background(), entities.TaskStatusPending, update)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestTaskAdapter_ListByType_BuildsFilters(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewTaskAdapter(client)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "encounter_id", "type", "title", "assigned_to", "status", "created_at", "token",
	}).AddRow("task-1", "enc-1", "Lab Test", "Blood Test", "lab-1", "DONE", now, "E-001")

	mock.ExpectQuery(`"t"."type" ILIKE '%lab%'`).WillReturnRows(rows)

	tasks, err := adapter.ListByType(context.Background(), repositories.TaskTypeFilter{TypeContains: "lab"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "E-001", tasks[0].Token)
	assert.NoError(t, mock.ExpectationsWereMet())
}
