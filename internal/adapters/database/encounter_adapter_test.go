package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medflow/clinic-workflow/backend/internal/domain/entities"
	apperrors "github.com/medflow/clinic-workflow/backend/pkg/errors"
)

func sampleIntake() (*entities.Patient, *entities.Encounter) {
	now := time.Now()
	patient := &entities.Patient{
		ID:        "pat-1",
		FullName:  "Ada Obi",
		Age:       34,
		Phone:     "0800000000",
		CreatedAt: now,
	}
	encounter := &entities.Encounter{
		ID:         "enc-1",
		PatientID:  patient.ID,
		Token:      "E-001",
		Status:     entities.EncounterStatusActive,
		Department: "General",
		CreatedAt:  now,
	}
	return patient, encounter
}

func TestEncounterAdapter_CreateWithPatient(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewEncounterAdapter(client)
	patient, encounter := sampleIntake()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "patients"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "encounters"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := adapter.CreateWithPatient(context.Background(), patient, encounter)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEncounterAdapter_CreateWithPatient_RollsBackOnEncounterFailure(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewEncounterAdapter(client)
	patient, encounter := sampleIntake()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "patients"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "encounters"`).
		WillReturnError(errors.New("insert failed"))
	mock.ExpectRollback()

	err := adapter.CreateWithPatient(context.Background(), patient, encounter)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet(), "patient insert must roll back")
}

func TestEncounterAdapter_GetByID(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewEncounterAdapter(client)
	now := time.Now()

	mock.ExpectQuery(`SELECT .* FROM "encounters"`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "patient_id", "token", "status", "department", "doctor_id", "created_at",
			"full_name", "age", "phone", "created_at",
		}).AddRow("enc-1", "pat-1", "E-001", "active", "General", nil, now,
			"Ada Obi", 34, "0800000000", now))

	encounter, err := adapter.GetByID(context.Background(), "enc-1")
	require.NoError(t, err)
	assert.Equal(t, "E-001", encounter.Token)
	assert.Nil(t, encounter.DoctorID)
	require.NotNil(t, encounter.Patient)
	assert.Equal(t, "Ada Obi", encounter.Patient.FullName)
	assert.Equal(t, "pat-1", encounter.Patient.ID)
}

func TestEncounterAdapter_GetByID_NotFound(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewEncounterAdapter(client)

	mock.ExpectQuery(`SELECT .* FROM "encounters"`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "patient_id", "token", "status", "department", "doctor_id", "created_at",
			"full_name", "age", "phone", "created_at",
		}))

	_, err := adapter.GetByID(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestEncounterAdapter_Complete_AlreadyCompleted(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewEncounterAdapter(client)
	now := time.Now()

	mock.ExpectExec(`UPDATE "encounters" SET "status"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	// zero rows: re-read to tell already-completed from missing
	mock.ExpectQuery(`SELECT .* FROM "encounters"`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "patient_id", "token", "status", "department", "doctor_id", "created_at",
			"full_name", "age", "phone", "created_at",
		}).AddRow("enc-1", "pat-1", "E-001", "completed", "General", nil, now,
			"Ada Obi", 34, "0800000000", now))

	err := adapter.Complete(context.Background(), "enc-1")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidState))
}

func TestEncounterAdapter_Complete(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewEncounterAdapter(client)

	mock.ExpectExec(`UPDATE "encounters" SET "status"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := adapter.Complete(context.Background(), "enc-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
