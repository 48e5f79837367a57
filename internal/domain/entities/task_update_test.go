package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeLabResult(t *testing.T) {
	tests := []struct {
		name    string
		result  LabResultValue
		remarks string
		want    string
	}{
		{
			name:    "positive with remarks",
			result:  LabResultPositive,
			remarks: "elevated markers",
			want:    "Lab result: POSITIVE — elevated markers",
		},
		{
			name:   "negative without remarks",
			result: LabResultNegative,
			want:   "Lab result: NEGATIVE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EncodeLabResult(tt.result, tt.remarks))
		})
	}
}

func TestTaskUpdate_IsLabResult(t *testing.T) {
	tests := []struct {
		name   string
		update TaskUpdate
		want   bool
	}{
		{
			name:   "lab result from lab actor",
			update: TaskUpdate{UpdatedBy: ActorRoleLab, Message: "Lab result: POSITIVE — x"},
			want:   true,
		},
		{
			name:   "processing update from lab actor",
			update: TaskUpdate{UpdatedBy: ActorRoleLab, Message: "Lab sample processing: Blood Test"},
			want:   false,
		},
		{
			name:   "result-shaped message from wrong actor",
			update: TaskUpdate{UpdatedBy: ActorRoleDoctor, Message: "Lab result: POSITIVE"},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.update.IsLabResult())
		})
	}
}

func TestTaskUpdate_LabReport(t *testing.T) {
	u := TaskUpdate{UpdatedBy: ActorRoleLab, Message: "Lab result: NEGATIVE — all clear"}
	assert.Equal(t, "Report: NEGATIVE — all clear", u.LabReport())

	notResult := TaskUpdate{UpdatedBy: ActorRoleLab, Message: "Lab sample processing: Blood Test"}
	assert.Empty(t, notResult.LabReport())
}

func TestTaskStatus_Next(t *testing.T) {
	next, ok := TaskStatusPending.Next()
	assert.True(t, ok)
	assert.Equal(t, TaskStatusInProgress, next)

	next, ok = TaskStatusInProgress.Next()
	assert.True(t, ok)
	assert.Equal(t, TaskStatusDone, next)

	_, ok = TaskStatusDone.Next()
	assert.False(t, ok)
}

func TestTaskStatus_Valid(t *testing.T) {
	assert.True(t, TaskStatusPending.Valid())
	assert.True(t, TaskStatusInProgress.Valid())
	assert.True(t, TaskStatusDone.Valid())
	assert.False(t, TaskStatus("CANCELLED").Valid())
	assert.False(t, TaskStatus("").Valid())
}

func TestTaskStatus_Rank(t *testing.T) {
	assert.Less(t, TaskStatusPending.Rank(), TaskStatusInProgress.Rank())
	assert.Less(t, TaskStatusInProgress.Rank(), TaskStatusDone.Rank())
	assert.Equal(t, -1, TaskStatus("LIMBO").Rank())
}
