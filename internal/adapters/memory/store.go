// Package memory provides an in-process implementation of the workflow
// repositories, mirroring the mock providers the service layer is tested
// against. It honors the same contracts as the Postgres adapters: atomic
// intake, linearizable token issuance, compare-and-swap transitions, and
// snapshot list reads.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/medflow/clinic-workflow/backend/internal/domain/entities"
	"github.com/medflow/clinic-workflow/backend/internal/domain/repositories"
	apperrors "github.com/medflow/clinic-workflow/backend/pkg/errors"
)

// Store holds every workflow entity behind one mutex. Writes are
// serialized; list reads return copies so a caller never observes a
// mutation in flight.
type Store struct {
	mu sync.RWMutex

	patients   map[string]*entities.Patient
	doctors    map[string]*entities.Doctor
	encounters map[string]*entities.Encounter
	tasks      map[string]*entities.Task
	updates    []*entities.TaskUpdate

	counter int64
	prefix  string
	padding int

	// seq breaks creation-time ties so newest-first ordering is stable
	seq     int64
	taskSeq map[string]int64
	encSeq  map[string]int64
}

// NewStore creates an empty in-memory store issuing tokens with the given
// prefix and zero-padding
func NewStore(tokenPrefix string, tokenPadding int) *Store {
	return &Store{
		patients:   make(map[string]*entities.Patient),
		doctors:    make(map[string]*entities.Doctor),
		encounters: make(map[string]*entities.Encounter),
		tasks:      make(map[string]*entities.Task),
		prefix:     tokenPrefix,
		padding:    tokenPadding,
		taskSeq:    make(map[string]int64),
		encSeq:     make(map[string]int64),
	}
}

// Issue returns the next token. Counter increments happen under the store
// lock, so concurrent callers each observe a distinct consecutive value.
func (s *Store) Issue(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	return fmt.Sprintf("%s%0*d", s.prefix, s.padding, s.counter), nil
}

// CreateWithPatient creates the patient and encounter as one unit
func (s *Store) CreateWithPatient(ctx context.Context, patient *entities.Patient, encounter *entities.Encounter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.encounters[encounter.ID]; exists {
		return apperrors.NewConflictError(fmt.Sprintf("encounter %s already exists", encounter.ID))
	}
	for _, existing := range s.encounters {
		if existing.Token == encounter.Token {
			return apperrors.NewConflictError(fmt.Sprintf("token %s already assigned", encounter.Token))
		}
	}

	p := *patient
	e := *encounter
	s.patients[p.ID] = &p
	s.encounters[e.ID] = &e
	s.seq++
	s.encSeq[e.ID] = s.seq
	return nil
}

// GetByID retrieves an encounter with its patient
func (s *Store) GetByID(ctx context.Context, id string) (*entities.Encounter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	encounter, ok := s.encounters[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("encounter with id %s not found", id))
	}
	return s.copyEncounter(encounter), nil
}

// ListActive retrieves active encounters, newest first
func (s *Store) ListActive(ctx context.Context) ([]*entities.Encounter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var encounters []*entities.Encounter
	for _, encounter := range s.encounters {
		if encounter.Status == entities.EncounterStatusActive {
			encounters = append(encounters, s.copyEncounter(encounter))
		}
	}
	sort.Slice(encounters, func(i, j int) bool {
		return s.encSeq[encounters[i].ID] > s.encSeq[encounters[j].ID]
	})
	return encounters, nil
}

// Complete moves an active encounter to completed
func (s *Store) Complete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encounter, ok := s.encounters[id]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("encounter with id %s not found", id))
	}
	if encounter.Status != entities.EncounterStatusActive {
		return apperrors.NewInvalidStateError(fmt.Sprintf("encounter %s is not active", id))
	}
	encounter.Status = entities.EncounterStatusCompleted
	return nil
}

// CreateDoctor registers a doctor
func (s *Store) CreateDoctor(ctx context.Context, doctor *entities.Doctor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := *doctor
	s.doctors[d.ID] = &d
	return nil
}

// ListByDepartment retrieves available doctors of one department
func (s *Store) ListByDepartment(ctx context.Context, department string) ([]*entities.Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doctors []*entities.Doctor
	for _, doctor := range s.doctors {
		if doctor.Department == department && doctor.IsAvailable {
			d := *doctor
			doctors = append(doctors, &d)
		}
	}
	sort.Slice(doctors, func(i, j int) bool { return doctors[i].Name < doctors[j].Name })
	return doctors, nil
}

// CreateTask inserts the task and its first audit update as one unit
func (s *Store) CreateTask(ctx context.Context, task *entities.Task, first *entities.TaskUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encounter, ok := s.encounters[task.EncounterID]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("encounter with id %s not found", task.EncounterID))
	}
	if encounter.Status != entities.EncounterStatusActive {
		return apperrors.NewInvalidStateError(fmt.Sprintf("encounter %s is not active", task.EncounterID))
	}

	t := *task
	u := *first
	s.tasks[t.ID] = &t
	s.updates = append(s.updates, &u)
	s.seq++
	s.taskSeq[t.ID] = s.seq
	return nil
}

// GetTaskByID retrieves a task by ID
func (s *Store) GetTaskByID(ctx context.Context, id string) (*entities.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("task with id %s not found", id))
	}
	return s.copyTask(task), nil
}

// ListByEncounter retrieves all tasks of one encounter, newest first
func (s *Store) ListByEncounter(ctx context.Context, encounterID string) ([]*entities.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tasks []*entities.Task
	for _, task := range s.tasks {
		if task.EncounterID == encounterID {
			tasks = append(tasks, s.copyTask(task))
		}
	}
	s.sortTasksNewestFirst(tasks)
	return tasks, nil
}

// ListByType retrieves tasks matching the filter, newest first
func (s *Store) ListByType(ctx context.Context, filter repositories.TaskTypeFilter) ([]*entities.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tasks []*entities.Task
	for _, task := range s.tasks {
		if filter.TypeContains != "" &&
			!strings.Contains(strings.ToLower(task.Type), strings.ToLower(filter.TypeContains)) {
			continue
		}
		if filter.TypeEquals != "" && task.Type != filter.TypeEquals {
			continue
		}
		if filter.ExcludeStatus != "" && task.Status == filter.ExcludeStatus {
			continue
		}
		tasks = append(tasks, s.copyTask(task))
	}
	s.sortTasksNewestFirst(tasks)
	return tasks, nil
}

// ApplyTransition advances the task's status and appends the audit update,
// but only if the current status still equals observed
func (s *Store) ApplyTransition(ctx context.Context, observed entities.TaskStatus, update *entities.TaskUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[update.TaskID]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("task with id %s not found", update.TaskID))
	}
	if task.Status != observed {
		return apperrors.NewConflictError(fmt.Sprintf(
			"task %s is %s, not %s as observed", task.ID, task.Status, observed))
	}

	task.Status = update.Status
	u := *update
	s.updates = append(s.updates, &u)
	return nil
}

// ListByTask retrieves one task's updates, oldest first
func (s *Store) ListByTask(ctx context.Context, taskID string) ([]*entities.TaskUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var updates []*entities.TaskUpdate
	for _, update := range s.updates {
		if update.TaskID == taskID {
			updates = append(updates, s.copyUpdate(update))
		}
	}
	return updates, nil
}

// ListAll retrieves every update across all tasks, newest first
func (s *Store) ListAll(ctx context.Context) ([]*entities.TaskUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	updates := make([]*entities.TaskUpdate, 0, len(s.updates))
	for i := len(s.updates) - 1; i >= 0; i-- {
		updates = append(updates, s.copyUpdate(s.updates[i]))
	}
	return updates, nil
}

// Tokens returns the store's TokenIssuer view
func (s *Store) Tokens() repositories.TokenIssuer { return s }

// Encounters returns the store's EncounterRepository view
func (s *Store) Encounters() repositories.EncounterRepository { return s }

// Doctors returns the store's DoctorRepository view
func (s *Store) Doctors() repositories.DoctorRepository { return doctorStore{s} }

// Tasks returns the store's TaskRepository view
func (s *Store) Tasks() repositories.TaskRepository { return taskStore{s} }

// Updates returns the store's TaskUpdateRepository view
func (s *Store) Updates() repositories.TaskUpdateRepository { return s }

type doctorStore struct{ s *Store }

func (d doctorStore) Create(ctx context.Context, doctor *entities.Doctor) error {
	return d.s.CreateDoctor(ctx, doctor)
}

func (d doctorStore) ListByDepartment(ctx context.Context, department string) ([]*entities.Doctor, error) {
	return d.s.ListByDepartment(ctx, department)
}

type taskStore struct{ s *Store }

func (t taskStore) Create(ctx context.Context, task *entities.Task, first *entities.TaskUpdate) error {
	return t.s.CreateTask(ctx, task, first)
}

func (t taskStore) GetByID(ctx context.Context, id string) (*entities.Task, error) {
	return t.s.GetTaskByID(ctx, id)
}

func (t taskStore) ListByEncounter(ctx context.Context, encounterID string) ([]*entities.Task, error) {
	return t.s.ListByEncounter(ctx, encounterID)
}

func (t taskStore) ListByType(ctx context.Context, filter repositories.TaskTypeFilter) ([]*entities.Task, error) {
	return t.s.ListByType(ctx, filter)
}

func (t taskStore) ApplyTransition(ctx context.Context, observed entities.TaskStatus, update *entities.TaskUpdate) error {
	return t.s.ApplyTransition(ctx, observed, update)
}

func (s *Store) sortTasksNewestFirst(tasks []*entities.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		return s.taskSeq[tasks[i].ID] > s.taskSeq[tasks[j].ID]
	})
}

func (s *Store) copyEncounter(encounter *entities.Encounter) *entities.Encounter {
	e := *encounter
	if patient, ok := s.patients[e.PatientID]; ok {
		p := *patient
		e.Patient = &p
	}
	return &e
}

func (s *Store) copyTask(task *entities.Task) *entities.Task {
	t := *task
	if encounter, ok := s.encounters[t.EncounterID]; ok {
		t.Token = encounter.Token
	}
	return &t
}

func (s *Store) copyUpdate(update *entities.TaskUpdate) *entities.TaskUpdate {
	u := *update
	if task, ok := s.tasks[u.TaskID]; ok {
		u.TaskTitle = task.Title
		u.TaskType = task.Type
		if encounter, ok := s.encounters[task.EncounterID]; ok {
			u.Token = encounter.Token
		}
	}
	return &u
}
