package entities

import (
	"strings"
	"time"
)

// ActorRole identifies who produced a task update
type ActorRole string

const (
	ActorRoleDoctor   ActorRole = "DOCTOR"
	ActorRoleLab      ActorRole = "LAB"
	ActorRolePharmacy ActorRole = "PHARMACY"
	ActorRoleSystem   ActorRole = "SYSTEM"
)

// LabResultValue is the structured outcome of a finished lab task
type LabResultValue string

const (
	LabResultPositive LabResultValue = "POSITIVE"
	LabResultNegative LabResultValue = "NEGATIVE"
)

// Valid reports whether v is a known result value
func (v LabResultValue) Valid() bool {
	return v == LabResultPositive || v == LabResultNegative
}

const labResultPrefix = "Lab result:"

// TaskUpdate is one immutable audit record describing a task's creation or
// status transition. Once written it is never edited or deleted; the
// per-task sequence is the sole source of current status and latest result.
type TaskUpdate struct {
	ID        string     `json:"id" db:"id"`
	TaskID    string     `json:"task_id" db:"task_id"`
	Message   string     `json:"message" db:"message"`
	UpdatedBy ActorRole  `json:"updated_by" db:"updated_by"`
	Status    TaskStatus `json:"status" db:"status"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`

	// Joined fields for timeline reads
	TaskTitle string `json:"task_title,omitempty" db:"-"`
	TaskType  string `json:"task_type,omitempty" db:"-"`
	Token     string `json:"token,omitempty" db:"-"`
}

// EncodeLabResult renders a structured lab outcome into the update message
// carried by the DONE transition, e.g. "Lab result: POSITIVE — no anomalies".
func EncodeLabResult(result LabResultValue, remarks string) string {
	msg := labResultPrefix + " " + string(result)
	if remarks != "" {
		msg += " — " + remarks
	}
	return msg
}

// IsLabResult reports whether u carries a structured lab result payload
func (u *TaskUpdate) IsLabResult() bool {
	return u.UpdatedBy == ActorRoleLab && strings.HasPrefix(u.Message, labResultPrefix)
}

// LabReport re-renders a lab result message for the doctor panel,
// replacing the result prefix with the report heading.
func (u *TaskUpdate) LabReport() string {
	if !u.IsLabResult() {
		return ""
	}
	return "Report:" + strings.TrimPrefix(u.Message, labResultPrefix)
}
