package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/medflow/clinic-workflow/backend/internal/domain/entities"
	"github.com/medflow/clinic-workflow/backend/internal/domain/providers"
	redisclient "github.com/medflow/clinic-workflow/backend/internal/infrastructure/clients/redis"
	apperrors "github.com/medflow/clinic-workflow/backend/pkg/errors"
)

// RedisEventBus implements the EventBus interface using Redis Pub/Sub.
// Delivery is at-least-once and best-effort: a slow subscriber drops
// events rather than blocking the bus, which only delays that consumer's
// next refresh because consumers re-derive their views from the store.
type RedisEventBus struct {
	client        *redisclient.Client
	breaker       *gobreaker.CircuitBreaker
	subscriptions map[string]*redis.PubSub
	subscribers   map[string]map[*busSubscription]struct{}
	mu            sync.RWMutex
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewRedisEventBus creates a new Redis-based event bus. The circuit
// breaker keeps a dead broker from stalling mutations: while open,
// publishes fail fast with TransientIO and the write path carries on.
func NewRedisEventBus(client *redisclient.Client) providers.EventBus {
	ctx, cancel := context.WithCancel(context.Background())
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "event-bus-publish",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &RedisEventBus{
		client:        client,
		breaker:       breaker,
		subscriptions: make(map[string]*redis.PubSub),
		subscribers:   make(map[string]map[*busSubscription]struct{}),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// busSubscription is one subscriber's handle on a topic
type busSubscription struct {
	bus   *RedisEventBus
	topic string
	ch    chan *entities.WorkflowEvent
	once  sync.Once
}

// Events returns the delivery channel
func (s *busSubscription) Events() <-chan *entities.WorkflowEvent {
	return s.ch
}

// Unsubscribe detaches this subscriber. Safe to call more than once and
// has no effect on other subscribers of the same topic.
func (s *busSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.removeSubscriber(s.topic, s)
	})
}

// Publish publishes an event to all subscribers of the topic
func (b *RedisEventBus) Publish(ctx context.Context, topic string, event *entities.WorkflowEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return apperrors.NewInternalError("failed to marshal event", err)
	}

	_, err = b.breaker.Execute(func() (interface{}, error) {
		return nil, b.client.Client().Publish(ctx, topic, data).Err()
	})
	if err != nil {
		return apperrors.NewTransientIOError(fmt.Sprintf("failed to publish event to %s", topic), err)
	}

	log.Debug().Str("topic", topic).Str("event_id", event.ID).Msg("published event")
	return nil
}

// Subscribe subscribes to events on a topic
func (b *RedisEventBus) Subscribe(ctx context.Context, topic string) (providers.Subscription, error) {
	b.mu.Lock()

	if _, exists := b.subscriptions[topic]; !exists {
		pubsub := b.client.Client().Subscribe(b.ctx, topic)
		b.subscriptions[topic] = pubsub
		go b.receiveMessages(topic, pubsub)
	}

	if b.subscribers[topic] == nil {
		b.subscribers[topic] = make(map[*busSubscription]struct{})
	}

	sub := &busSubscription{
		bus:   b,
		topic: topic,
		ch:    make(chan *entities.WorkflowEvent, 100),
	}
	b.subscribers[topic][sub] = struct{}{}
	subscriberCount := len(b.subscribers[topic])
	b.mu.Unlock()

	log.Debug().Str("topic", topic).Int("subscribers", subscriberCount).Msg("subscribed to topic")

	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
	}()

	return sub, nil
}

// receiveMessages receives messages from Redis and broadcasts them to subscribers
func (b *RedisEventBus) receiveMessages(topic string, pubsub *redis.PubSub) {
	defer b.cleanupTopic(topic)

	ch := pubsub.Channel()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event entities.WorkflowEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Warn().Err(err).Str("topic", topic).Msg("failed to unmarshal event")
				continue
			}

			b.mu.RLock()
			for sub := range b.subscribers[topic] {
				select {
				case sub.ch <- &event:
				default:
					// Subscriber channel full, skip event
					log.Warn().Str("topic", topic).Str("event_id", event.ID).
						Msg("subscriber channel full, skipping event")
				}
			}
			b.mu.RUnlock()
		}
	}
}

func (b *RedisEventBus) removeSubscriber(topic string, sub *busSubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscribers, exists := b.subscribers[topic]
	if !exists {
		return
	}

	if _, ok := subscribers[sub]; !ok {
		return
	}

	delete(subscribers, sub)
	close(sub.ch)

	if len(subscribers) == 0 {
		delete(b.subscribers, topic)
		if pubsub, ok := b.subscriptions[topic]; ok {
			_ = pubsub.Close()
			delete(b.subscriptions, topic)
			log.Debug().Str("topic", topic).Msg("closed topic subscription")
		}
	}
}

func (b *RedisEventBus) cleanupTopic(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, exists := b.subscribers[topic]; exists {
		for sub := range subscribers {
			close(sub.ch)
		}
		delete(b.subscribers, topic)
	}

	if pubsub, ok := b.subscriptions[topic]; ok {
		if err := pubsub.Close(); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("failed to close topic subscription")
		}
		delete(b.subscriptions, topic)
	}
}

// Close closes the event bus and all subscriptions
func (b *RedisEventBus) Close() error {
	b.cancel()

	b.mu.RLock()
	topics := make([]string, 0, len(b.subscriptions))
	for topic := range b.subscriptions {
		topics = append(topics, topic)
	}
	b.mu.RUnlock()

	for _, topic := range topics {
		b.cleanupTopic(topic)
	}

	log.Debug().Msg("event bus closed")
	return nil
}
