package entities

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// WorkflowEventType represents the kind of change a workflow event announces
type WorkflowEventType string

const (
	WorkflowEventTypeEncounterCreated   WorkflowEventType = "encounter_created"
	WorkflowEventTypeEncounterCompleted WorkflowEventType = "encounter_completed"
	WorkflowEventTypeTaskCreated        WorkflowEventType = "task_created"
	WorkflowEventTypeTaskUpdated        WorkflowEventType = "task_updated"
)

// WorkflowEvent announces that something changed in a topic. The payload is
// advisory only: consumers re-query the store on delivery, they never apply
// the event as a diff.
type WorkflowEvent struct {
	ID        string            `json:"id"`
	EntityID  string            `json:"entity_id"`
	EventType WorkflowEventType `json:"event_type"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewWorkflowEvent creates a new workflow event
func NewWorkflowEvent(entityID string, eventType WorkflowEventType) *WorkflowEvent {
	return &WorkflowEvent{
		ID:        generateEventID(),
		EntityID:  entityID,
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// generateEventID generates a unique event ID
func generateEventID() string {
	return time.Now().Format("20060102150405") + "-" + randomString(8)
}

// randomString generates a random string of specified length
func randomString(length int) string {
	bytes := make([]byte, length/2+1)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based if crypto/rand fails
		return time.Now().Format("150405.000")
	}
	return hex.EncodeToString(bytes)[:length]
}
