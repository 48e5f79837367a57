package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medflow/clinic-workflow/backend/internal/domain/entities"
	apperrors "github.com/medflow/clinic-workflow/backend/pkg/errors"
)

var testRules = QueueRules{LabTypeContains: "lab", PharmacyTypeEquals: "Pharmacy"}

func newQueueFixture(t *testing.T) (*workflowFixture, *QueueService) {
	t.Helper()
	f := newWorkflowFixture()
	queues, err := NewQueueService(f.store.Tasks(), testRules, nil)
	require.NoError(t, err)
	return f, queues
}

func TestNewQueueService_RequiresRules(t *testing.T) {
	f := newWorkflowFixture()

	_, err := NewQueueService(f.store.Tasks(), QueueRules{PharmacyTypeEquals: "Pharmacy"}, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	_, err = NewQueueService(f.store.Tasks(), QueueRules{LabTypeContains: "lab"}, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestQueueService_LabQueue(t *testing.T) {
	f, queues := newQueueFixture(t)
	ctx := context.Background()
	encounter := f.register(t)

	blood := f.order(t, encounter.ID, "Lab Test", "Blood Test")
	urine := f.order(t, encounter.ID, "LABORATORY", "Urinalysis")
	f.order(t, encounter.ID, "Pharmacy", "Amoxicillin 500mg")
	f.order(t, encounter.ID, "Radiology", "Chest X-Ray")

	// finished lab work stays visible in the lab queue
	_, err := f.lab.StartProcessing(ctx, blood.ID)
	require.NoError(t, err)
	_, err = f.lab.FinalizeResult(ctx, blood.ID, entities.LabResultNegative, "")
	require.NoError(t, err)

	queue, err := queues.LabQueue(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, urine.ID, queue[0].Task.ID, "newest first")
	assert.Equal(t, blood.ID, queue[1].Task.ID)
	assert.Equal(t, entities.TaskStatusDone, queue[1].Task.Status)
	assert.Equal(t, encounter.Token, queue[0].Task.Token)
	assert.False(t, queue[0].Ambiguous)
}

func TestQueueService_PharmacyQueue(t *testing.T) {
	f, queues := newQueueFixture(t)
	ctx := context.Background()
	encounter := f.register(t)

	amox := f.order(t, encounter.ID, "Pharmacy", "Amoxicillin 500mg")
	ibu := f.order(t, encounter.ID, "Pharmacy", "Ibuprofen 200mg")
	f.order(t, encounter.ID, "pharmacy supplies", "Gauze")
	f.order(t, encounter.ID, "Lab Test", "Blood Test")

	queue, err := queues.PharmacyQueue(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 2, "type match is exact")
	assert.Equal(t, ibu.ID, queue[0].Task.ID)
	assert.Equal(t, amox.ID, queue[1].Task.ID)

	// dispensing drops the order off the queue
	_, err = f.pharmacy.MarkReady(ctx, amox.ID)
	require.NoError(t, err)
	_, err = f.pharmacy.ConfirmDispense(ctx, amox.ID)
	require.NoError(t, err)

	queue, err = queues.PharmacyQueue(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, ibu.ID, queue[0].Task.ID)
}

func TestQueueService_AmbiguousType(t *testing.T) {
	f := newWorkflowFixture()
	// misconfigured rules where the exact pharmacy type also satisfies the
	// lab substring
	queues, err := NewQueueService(f.store.Tasks(), QueueRules{
		LabTypeContains:    "pharm",
		PharmacyTypeEquals: "Pharmacy",
	}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	encounter := f.register(t)
	task := f.order(t, encounter.ID, "Pharmacy", "Amoxicillin 500mg")

	labQueue, err := queues.LabQueue(ctx)
	require.NoError(t, err)
	require.Len(t, labQueue, 1)
	assert.Equal(t, task.ID, labQueue[0].Task.ID)
	assert.True(t, labQueue[0].Ambiguous)

	pharmacyQueue, err := queues.PharmacyQueue(ctx)
	require.NoError(t, err)
	require.Len(t, pharmacyQueue, 1)
	assert.True(t, pharmacyQueue[0].Ambiguous, "flagged in both queues")
}
