package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medflow/clinic-workflow/backend/internal/adapters/events"
	"github.com/medflow/clinic-workflow/backend/internal/adapters/memory"
	"github.com/medflow/clinic-workflow/backend/internal/domain/entities"
	"github.com/medflow/clinic-workflow/backend/internal/domain/providers"
	"github.com/medflow/clinic-workflow/backend/internal/domain/workflow"
	apperrors "github.com/medflow/clinic-workflow/backend/pkg/errors"
)

type workflowFixture struct {
	store    *memory.Store
	bus      providers.EventBus
	intake   *IntakeService
	ordering *OrderingService
	lab      *LabService
	pharmacy *PharmacyService
}

func newWorkflowFixture() *workflowFixture {
	store := memory.NewStore("E-", 3)
	bus := events.NewMemoryEventBus()
	machine := workflow.NewMachine()
	return &workflowFixture{
		store:    store,
		bus:      bus,
		intake:   NewIntakeService(store.Tokens(), store.Encounters(), store.Doctors(), bus, testDepartments, nil),
		ordering: NewOrderingService(store.Encounters(), store.Tasks(), store.Updates(), machine, bus, nil),
		lab:      NewLabService(store.Tasks(), machine, bus, nil),
		pharmacy: NewPharmacyService(store.Tasks(), machine, bus, nil),
	}
}

func (f *workflowFixture) register(t *testing.T) *entities.Encounter {
	t.Helper()
	encounter, err := f.intake.RegisterPatient(context.Background(), validIntake())
	require.NoError(t, err)
	return encounter
}

func (f *workflowFixture) order(t *testing.T, encounterID, taskType, title string) *entities.Task {
	t.Helper()
	task, err := f.ordering.PlaceOrder(context.Background(), &OrderRequest{
		EncounterID: encounterID,
		Type:        taskType,
		Title:       title,
		AssignedTo:  "staff-1",
	})
	require.NoError(t, err)
	return task
}

func TestOrderingService_PlaceOrder(t *testing.T) {
	f := newWorkflowFixture()
	ctx := context.Background()
	encounter := f.register(t)

	task := f.order(t, encounter.ID, "Lab Test", "Blood Test")

	assert.Equal(t, entities.TaskStatusPending, task.Status)
	assert.Equal(t, "Lab Test", task.Type)

	history, err := f.store.ListByTask(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Doctor ordered: Blood Test", history[0].Message)
	assert.Equal(t, entities.ActorRoleDoctor, history[0].UpdatedBy)
	assert.Equal(t, entities.TaskStatusPending, history[0].Status)
}

func TestOrderingService_PlaceOrder_CompletedEncounter(t *testing.T) {
	f := newWorkflowFixture()
	ctx := context.Background()
	encounter := f.register(t)
	require.NoError(t, f.ordering.CompleteEncounter(ctx, encounter.ID))

	_, err := f.ordering.PlaceOrder(ctx, &OrderRequest{
		EncounterID: encounter.ID,
		Type:        "Lab Test",
		Title:       "Blood Test",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidState))
}

func TestOrderingService_PlaceOrder_Validation(t *testing.T) {
	f := newWorkflowFixture()
	ctx := context.Background()

	tests := []struct {
		name string
		req  *OrderRequest
	}{
		{"nil request", nil},
		{"missing encounter", &OrderRequest{Type: "Lab Test", Title: "Blood Test"}},
		{"missing type", &OrderRequest{EncounterID: "e1", Title: "Blood Test"}},
		{"missing title", &OrderRequest{EncounterID: "e1", Type: "Lab Test"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ordering.PlaceOrder(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
		})
	}
}

func TestOrderingService_PlaceOrder_AnnouncesOnBothTopics(t *testing.T) {
	f := newWorkflowFixture()
	ctx := context.Background()
	encounter := f.register(t)

	shared, err := f.bus.Subscribe(ctx, providers.TopicTasks)
	require.NoError(t, err)
	defer shared.Unsubscribe()

	scoped, err := f.bus.Subscribe(ctx, providers.EncounterTaskTopic(encounter.ID))
	require.NoError(t, err)
	defer scoped.Unsubscribe()

	task := f.order(t, encounter.ID, "Lab Test", "Blood Test")

	for name, sub := range map[string]providers.Subscription{"shared": shared, "scoped": scoped} {
		select {
		case event := <-sub.Events():
			assert.Equal(t, task.ID, event.EntityID, name)
			assert.Equal(t, entities.WorkflowEventTypeTaskCreated, event.EventType, name)
		case <-time.After(time.Second):
			t.Fatalf("no task event on %s topic", name)
		}
	}
}

func TestOrderingService_DoctorPanel(t *testing.T) {
	f := newWorkflowFixture()
	ctx := context.Background()
	encounter := f.register(t)

	labTask := f.order(t, encounter.ID, "Lab Test", "Blood Test")
	f.order(t, encounter.ID, "Pharmacy", "Amoxicillin 500mg")

	_, err := f.lab.StartProcessing(ctx, labTask.ID)
	require.NoError(t, err)
	_, err = f.lab.FinalizeResult(ctx, labTask.ID, entities.LabResultPositive, "elevated markers")
	require.NoError(t, err)

	panel, err := f.ordering.DoctorPanel(ctx, encounter.ID)
	require.NoError(t, err)

	assert.Equal(t, encounter.ID, panel.Encounter.ID)
	require.Len(t, panel.Tasks, 2)
	// newest first: pharmacy order was placed after the lab order
	assert.Equal(t, "Pharmacy", panel.Tasks[0].Task.Type)
	assert.Empty(t, panel.Tasks[0].Report)

	labDetail := panel.Tasks[1]
	assert.Equal(t, labTask.ID, labDetail.Task.ID)
	require.Len(t, labDetail.Updates, 3)
	assert.Equal(t, "Doctor ordered: Blood Test", labDetail.Updates[0].Message)
	assert.Equal(t, "Lab sample processing: Blood Test", labDetail.Updates[1].Message)
	assert.Equal(t, "Report: POSITIVE — elevated markers", labDetail.Report)
}

func TestOrderingService_CompleteEncounter(t *testing.T) {
	f := newWorkflowFixture()
	ctx := context.Background()
	encounter := f.register(t)

	require.NoError(t, f.ordering.CompleteEncounter(ctx, encounter.ID))

	got, err := f.store.GetByID(ctx, encounter.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.EncounterStatusCompleted, got.Status)

	err = f.ordering.CompleteEncounter(ctx, encounter.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidState))
}
