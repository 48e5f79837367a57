package providers

import (
	"context"

	"github.com/medflow/clinic-workflow/backend/internal/domain/entities"
)

// Subscription is one subscriber's handle on a topic
type Subscription interface {
	// Events returns the delivery channel. Closed after Unsubscribe.
	Events() <-chan *entities.WorkflowEvent

	// Unsubscribe detaches this subscriber. Idempotent, and never affects
	// other subscribers sharing the topic.
	Unsubscribe()
}

// EventBus fans out workflow events to interested observers. Delivery is
// at-least-once and unordered across topics; the payload is advisory only.
// Handlers treat a delivery as a cue to re-query the store, never as a
// diff to apply.
type EventBus interface {
	// Publish publishes an event to all subscribers of the topic
	Publish(ctx context.Context, topic string, event *entities.WorkflowEvent) error

	// Subscribe subscribes to events on a topic
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Close closes the event bus and all subscriptions
	Close() error
}

// Topic constants for the workflow event streams
const (
	// TopicEncounters carries encounter lifecycle events
	TopicEncounters = "workflow:encounters"

	// TopicTasks carries task creation events
	TopicTasks = "workflow:tasks"

	// TopicTaskUpdates carries task transition events
	TopicTaskUpdates = "workflow:task_updates"

	// encounterTaskPrefix is the prefix for per-encounter task topics
	encounterTaskPrefix = "workflow:encounter:"
)

// EncounterTaskTopic returns the topic carrying task events scoped to one
// encounter, used by the doctor panel.
func EncounterTaskTopic(encounterID string) string {
	return encounterTaskPrefix + encounterID
}
