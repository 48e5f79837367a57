package events

import (
	"context"
	"sync"

	"github.com/medflow/clinic-workflow/backend/internal/domain/entities"
	"github.com/medflow/clinic-workflow/backend/internal/domain/providers"
	apperrors "github.com/medflow/clinic-workflow/backend/pkg/errors"
)

// MemoryEventBus is an in-process EventBus for tests and single-node
// development. It honors the same contract as the Redis bus: at-least-once
// best-effort fan-out, advisory payloads, idempotent unsubscribe.
type MemoryEventBus struct {
	mu          sync.RWMutex
	subscribers map[string]map[*memorySubscription]struct{}
	closed      bool
}

// NewMemoryEventBus creates a new in-process event bus
func NewMemoryEventBus() providers.EventBus {
	return &MemoryEventBus{
		subscribers: make(map[string]map[*memorySubscription]struct{}),
	}
}

type memorySubscription struct {
	bus   *MemoryEventBus
	topic string
	ch    chan *entities.WorkflowEvent
	once  sync.Once
}

// Events returns the delivery channel
func (s *memorySubscription) Events() <-chan *entities.WorkflowEvent {
	return s.ch
}

// Unsubscribe detaches this subscriber. Idempotent.
func (s *memorySubscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		if subs, ok := s.bus.subscribers[s.topic]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(s.bus.subscribers, s.topic)
			}
		}
		close(s.ch)
	})
}

// Publish delivers the event to all current subscribers of the topic
func (b *MemoryEventBus) Publish(ctx context.Context, topic string, event *entities.WorkflowEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return apperrors.NewTransientIOError("event bus is closed", nil)
	}

	for sub := range b.subscribers[topic] {
		select {
		case sub.ch <- event:
		default:
			// Subscriber channel full, skip event
		}
	}
	return nil
}

// Subscribe subscribes to events on a topic
func (b *MemoryEventBus) Subscribe(ctx context.Context, topic string) (providers.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, apperrors.NewTransientIOError("event bus is closed", nil)
	}

	sub := &memorySubscription{
		bus:   b,
		topic: topic,
		ch:    make(chan *entities.WorkflowEvent, 100),
	}
	if b.subscribers[topic] == nil {
		b.subscribers[topic] = make(map[*memorySubscription]struct{})
	}
	b.subscribers[topic][sub] = struct{}{}

	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
	}()

	return sub, nil
}

// Close closes the event bus and all subscriptions
func (b *MemoryEventBus) Close() error {
	b.mu.Lock()
	subs := make([]*memorySubscription, 0)
	for _, topicSubs := range b.subscribers {
		for sub := range topicSubs {
			subs = append(subs, sub)
		}
	}
	b.closed = true
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	return nil
}
