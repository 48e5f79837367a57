package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/medflow/clinic-workflow/backend/internal/domain/entities"
	"github.com/medflow/clinic-workflow/backend/internal/domain/providers"
	"github.com/medflow/clinic-workflow/backend/internal/domain/repositories"
	"github.com/medflow/clinic-workflow/backend/internal/infrastructure/observability"
	apperrors "github.com/medflow/clinic-workflow/backend/pkg/errors"
	"github.com/medflow/clinic-workflow/backend/pkg/retry"
)

// IntakeRequest carries the reception desk's registration form
type IntakeRequest struct {
	FullName   string `json:"full_name"`
	Age        int    `json:"age"`
	Phone      string `json:"phone"`
	Department string `json:"department"`
	DoctorID   string `json:"doctor_id,omitempty"`
}

// IntakeService handles patient registration: validate the form, issue the
// visit token, persist the patient with its encounter, announce the arrival.
type IntakeService struct {
	tokens      repositories.TokenIssuer
	encounters  repositories.EncounterRepository
	doctors     repositories.DoctorRepository
	bus         providers.EventBus
	departments []string
	metrics     *observability.Metrics
}

// NewIntakeService creates a new intake service
func NewIntakeService(
	tokens repositories.TokenIssuer,
	encounters repositories.EncounterRepository,
	doctors repositories.DoctorRepository,
	bus providers.EventBus,
	departments []string,
	metrics *observability.Metrics,
) *IntakeService {
	return &IntakeService{
		tokens:      tokens,
		encounters:  encounters,
		doctors:     doctors,
		bus:         bus,
		departments: departments,
		metrics:     metrics,
	}
}

// RegisterPatient validates the intake form, issues a visit token and
// creates the patient with an active encounter as one unit. The returned
// encounter carries the token the reception desk reads out.
func (s *IntakeService) RegisterPatient(ctx context.Context, req *IntakeRequest) (*entities.Encounter, error) {
	ctx, span := observability.StartSpan(ctx, "intake.register_patient")
	defer span.End()

	if err := s.validate(req); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	token, err := s.issueToken(ctx)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	now := time.Now()
	patient := &entities.Patient{
		ID:        uuid.New().String(),
		FullName:  req.FullName,
		Age:       req.Age,
		Phone:     req.Phone,
		CreatedAt: now,
	}
	encounter := &entities.Encounter{
		ID:         uuid.New().String(),
		PatientID:  patient.ID,
		Token:      token,
		Status:     entities.EncounterStatusActive,
		Department: req.Department,
		CreatedAt:  now,
	}
	if req.DoctorID != "" {
		doctorID := req.DoctorID
		encounter.DoctorID = &doctorID
	}

	if err := s.encounters.CreateWithPatient(ctx, patient, encounter); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	log.Info().
		Str("encounter_id", encounter.ID).
		Str("token", token).
		Str("department", encounter.Department).
		Msg("patient registered")

	s.announce(ctx, encounter.ID)

	encounter.Patient = patient
	return encounter, nil
}

// ListActiveEncounters returns the current roster of active encounters,
// newest first, for the reception and doctor panels
func (s *IntakeService) ListActiveEncounters(ctx context.Context) ([]*entities.Encounter, error) {
	return s.encounters.ListActive(ctx)
}

// GetEncounter retrieves one encounter with its patient
func (s *IntakeService) GetEncounter(ctx context.Context, id string) (*entities.Encounter, error) {
	if id == "" {
		return nil, apperrors.NewValidationError("encounter id is required")
	}
	return s.encounters.GetByID(ctx, id)
}

// Departments returns the departments the clinic accepts at intake
func (s *IntakeService) Departments() []string {
	out := make([]string, len(s.departments))
	copy(out, s.departments)
	return out
}

// RegisterDoctor adds a doctor to the directory
func (s *IntakeService) RegisterDoctor(ctx context.Context, name, department string) (*entities.Doctor, error) {
	if name == "" {
		return nil, apperrors.NewValidationError("doctor name is required")
	}
	if !s.knownDepartment(department) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown department %q", department))
	}

	doctor := &entities.Doctor{
		ID:          uuid.New().String(),
		Name:        name,
		Department:  department,
		IsAvailable: true,
		CreatedAt:   time.Now(),
	}
	if err := s.doctors.Create(ctx, doctor); err != nil {
		return nil, err
	}
	return doctor, nil
}

// ListDoctors retrieves the available doctors of one department
func (s *IntakeService) ListDoctors(ctx context.Context, department string) ([]*entities.Doctor, error) {
	if !s.knownDepartment(department) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown department %q", department))
	}
	return s.doctors.ListByDepartment(ctx, department)
}

func (s *IntakeService) validate(req *IntakeRequest) error {
	if req == nil {
		return apperrors.NewValidationError("intake request is required")
	}
	if req.FullName == "" {
		return apperrors.NewValidationError("patient name is required")
	}
	if req.Age < 0 || req.Age > 150 {
		return apperrors.NewValidationError(fmt.Sprintf("age %d is out of range", req.Age))
	}
	if req.Phone == "" {
		return apperrors.NewValidationError("phone is required")
	}
	if !s.knownDepartment(req.Department) {
		return apperrors.NewValidationError(fmt.Sprintf("unknown department %q", req.Department))
	}
	return nil
}

func (s *IntakeService) knownDepartment(department string) bool {
	for _, d := range s.departments {
		if d == department {
			return true
		}
	}
	return false
}

// issueToken retries transient counter failures; anything else surfaces
// immediately
func (s *IntakeService) issueToken(ctx context.Context) (string, error) {
	cfg := retry.DefaultConfig()
	cfg.RetryIf = apperrors.IsTransient

	var token string
	err := retry.DoWithLog(ctx, cfg, "token-issuer", func() error {
		var issueErr error
		token, issueErr = s.tokens.Issue(ctx)
		return issueErr
	}, func(attempt int, err error, nextDelay time.Duration) {
		log.Warn().Err(err).Int("attempt", attempt).Dur("next_delay", nextDelay).
			Msg("token issue failed, retrying")
	})
	if err != nil {
		return "", err
	}

	if s.metrics != nil {
		s.metrics.TokensIssued.Add(ctx, 1)
	}
	return token, nil
}

// announce publishes the arrival after the commit. A dead bus never undoes
// a registration: subscribers catch up on their next full re-query.
func (s *IntakeService) announce(ctx context.Context, encounterID string) {
	event := entities.NewWorkflowEvent(encounterID, entities.WorkflowEventTypeEncounterCreated)
	if err := s.bus.Publish(ctx, providers.TopicEncounters, event); err != nil {
		log.Warn().Err(err).Str("encounter_id", encounterID).Msg("failed to publish encounter event")
		return
	}
	if s.metrics != nil {
		s.metrics.EventsPublished.Add(ctx, 1)
	}
}
