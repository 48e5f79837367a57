package database

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"

	"github.com/medflow/clinic-workflow/backend/internal/domain/entities"
	"github.com/medflow/clinic-workflow/backend/internal/domain/repositories"
	"github.com/medflow/clinic-workflow/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/medflow/clinic-workflow/backend/pkg/errors"
)

// DoctorAdapter implements the DoctorRepository interface
type DoctorAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewDoctorAdapter creates a new doctor adapter
func NewDoctorAdapter(client *postgres.Client) repositories.DoctorRepository {
	return &DoctorAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Create registers a doctor
func (a *DoctorAdapter) Create(ctx context.Context, doctor *entities.Doctor) error {
	query, args, err := a.db.Insert("doctors").Rows(goqu.Record{
		"id":           doctor.ID,
		"name":         doctor.Name,
		"department":   doctor.Department,
		"is_available": doctor.IsAvailable,
		"created_at":   doctor.CreatedAt,
	}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build doctor insert", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return wrapDBError("failed to create doctor", err)
	}

	return nil
}

// ListByDepartment retrieves available doctors of one department
func (a *DoctorAdapter) ListByDepartment(ctx context.Context, department string) ([]*entities.Doctor, error) {
	query, args, err := a.db.Select(
		"id", "name", "department", "is_available", "created_at",
	).From("doctors").
		Where(goqu.Ex{"department": department, "is_available": true}).
		Order(goqu.I("name").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build doctors query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("failed to list doctors", err)
	}
	defer rows.Close()

	var doctors []*entities.Doctor
	for rows.Next() {
		doctor := &entities.Doctor{}
		if err := rows.Scan(
			&doctor.ID,
			&doctor.Name,
			&doctor.Department,
			&doctor.IsAvailable,
			&doctor.CreatedAt,
		); err != nil {
			return nil, apperrors.NewInternalError("failed to scan doctor", err)
		}
		doctors = append(doctors, doctor)
	}

	return doctors, rows.Err()
}
