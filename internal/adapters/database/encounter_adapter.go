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

// EncounterAdapter implements the EncounterRepository interface
type EncounterAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewEncounterAdapter creates a new encounter adapter
func NewEncounterAdapter(client *postgres.Client) repositories.EncounterRepository {
	return &EncounterAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// CreateWithPatient creates the patient and the encounter in one
// transaction. A failure on either insert rolls both back, so a patient
// row never exists without its encounter.
func (a *EncounterAdapter) CreateWithPatient(ctx context.Context, patient *entities.Patient, encounter *entities.Encounter) error {
	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return wrapDBError("failed to begin intake transaction", err)
	}
	defer tx.Rollback()

	patientQuery, patientArgs, err := a.db.Insert("patients").Rows(goqu.Record{
		"id":         patient.ID,
		"full_name":  patient.FullName,
		"age":        patient.Age,
		"phone":      patient.Phone,
		"created_at": patient.CreatedAt,
	}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build patient insert", err)
	}

	if _, err := tx.ExecContext(ctx, patientQuery, patientArgs...); err != nil {
		return wrapDBError("failed to create patient", err)
	}

	encounterQuery, encounterArgs, err := a.db.Insert("encounters").Rows(goqu.Record{
		"id":         encounter.ID,
		"patient_id": encounter.PatientID,
		"token":      encounter.Token,
		"status":     encounter.Status,
		"department": encounter.Department,
		"doctor_id":  encounter.DoctorID,
		"created_at": encounter.CreatedAt,
	}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build encounter insert", err)
	}

	if _, err := tx.ExecContext(ctx, encounterQuery, encounterArgs...); err != nil {
		return wrapDBError("failed to create encounter", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapDBError("failed to commit intake transaction", err)
	}

	return nil
}

// GetByID retrieves an encounter by ID with its patient
func (a *EncounterAdapter) GetByID(ctx context.Context, id string) (*entities.Encounter, error) {
	query, args, err := a.db.Select(
		goqu.I("e.id"), goqu.I("e.patient_id"), goqu.I("e.token"), goqu.I("e.status"),
		goqu.I("e.department"), goqu.I("e.doctor_id"), goqu.I("e.created_at"),
		goqu.I("p.full_name"), goqu.I("p.age"), goqu.I("p.phone"), goqu.I("p.created_at"),
	).From(goqu.T("encounters").As("e")).
		Join(goqu.T("patients").As("p"), goqu.On(goqu.Ex{"p.id": goqu.I("e.patient_id")})).
		Where(goqu.Ex{"e.id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build encounter query", err)
	}

	encounter, err := a.scanEncounter(a.client.DB().QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("encounter with id %s not found", id))
	}
	if err != nil {
		return nil, wrapDBError("failed to get encounter", err)
	}

	return encounter, nil
}

// ListActive retrieves all active encounters with patients, newest first
func (a *EncounterAdapter) ListActive(ctx context.Context) ([]*entities.Encounter, error) {
	query, args, err := a.db.Select(
		goqu.I("e.id"), goqu.I("e.patient_id"), goqu.I("e.token"), goqu.I("e.status"),
		goqu.I("e.department"), goqu.I("e.doctor_id"), goqu.I("e.created_at"),
		goqu.I("p.full_name"), goqu.I("p.age"), goqu.I("p.phone"), goqu.I("p.created_at"),
	).From(goqu.T("encounters").As("e")).
		Join(goqu.T("patients").As("p"), goqu.On(goqu.Ex{"p.id": goqu.I("e.patient_id")})).
		Where(goqu.Ex{"e.status": entities.EncounterStatusActive}).
		Order(goqu.I("e.created_at").Desc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build active encounters query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("failed to list active encounters", err)
	}
	defer rows.Close()

	var encounters []*entities.Encounter
	for rows.Next() {
		encounter, err := a.scanEncounter(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan encounter", err)
		}
		encounters = append(encounters, encounter)
	}

	return encounters, rows.Err()
}

// Complete moves an active encounter to completed
func (a *EncounterAdapter) Complete(ctx context.Context, id string) error {
	query, args, err := a.db.Update("encounters").
		Set(goqu.Record{"status": entities.EncounterStatusCompleted}).
		Where(goqu.Ex{"id": id, "status": entities.EncounterStatusActive}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build complete query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return wrapDBError("failed to complete encounter", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}

	if rowsAffected == 0 {
		// Either the encounter does not exist or it is already completed
		if _, err := a.GetByID(ctx, id); err != nil {
			return err
		}
		return apperrors.NewInvalidStateError(fmt.Sprintf("encounter %s is not active", id))
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (a *EncounterAdapter) scanEncounter(row rowScanner) (*entities.Encounter, error) {
	encounter := &entities.Encounter{Patient: &entities.Patient{}}
	var doctorID sql.NullString

	err := row.Scan(
		&encounter.ID,
		&encounter.PatientID,
		&encounter.Token,
		&encounter.Status,
		&encounter.Department,
		&doctorID,
		&encounter.CreatedAt,
		&encounter.Patient.FullName,
		&encounter.Patient.Age,
		&encounter.Patient.Phone,
		&encounter.Patient.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	encounter.Patient.ID = encounter.PatientID
	if doctorID.Valid {
		encounter.DoctorID = &doctorID.String
	}

	return encounter, nil
}
