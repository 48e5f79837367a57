package entities

import (
	"time"
)

// TaskStatus represents the execution state of a clinical order.
// The only legal order is PENDING -> IN_PROGRESS -> DONE, one step at a time.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusDone       TaskStatus = "DONE"
)

// Valid reports whether s is one of the closed set of statuses
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusDone:
		return true
	}
	return false
}

// Rank returns the position of s in the forward order. Higher never
// transitions to lower.
func (s TaskStatus) Rank() int {
	switch s {
	case TaskStatusPending:
		return 0
	case TaskStatusInProgress:
		return 1
	case TaskStatusDone:
		return 2
	}
	return -1
}

// Next returns the single legal successor of s, or false if s is terminal
func (s TaskStatus) Next() (TaskStatus, bool) {
	switch s {
	case TaskStatusPending:
		return TaskStatusInProgress, true
	case TaskStatusInProgress:
		return TaskStatusDone, true
	}
	return "", false
}

// Terminal reports whether no further transition is possible
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusDone
}

// Task represents a single clinical order tied to one encounter. Its
// status is always the status of the most recent applied transition.
type Task struct {
	ID          string     `json:"id" db:"id"`
	EncounterID string     `json:"encounter_id" db:"encounter_id"`
	Type        string     `json:"type" db:"type"`
	Title       string     `json:"title" db:"title"`
	AssignedTo  string     `json:"assigned_to" db:"assigned_to"`
	Status      TaskStatus `json:"status" db:"status"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`

	// Token is populated by joined reads for queue display
	Token string `json:"token,omitempty" db:"-"`
}
