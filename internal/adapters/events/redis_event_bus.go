package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/hospitalops/internal/domain/entities"
	"github.com/zatekoja/hospitalops/internal/domain/providers"
	redisclient "github.com/zatekoja/hospitalops/internal/infrastructure/clients/redis"
)

// RedisEventBus implements the EventBus interface using Redis Pub/Sub
type RedisEventBus struct {
	client         *redisclient.Client
	publishTimeout time.Duration
	subscriptions  map[string]*redis.PubSub
	subscribers    map[string]map[chan *entities.Envelope]struct{}
	mu             sync.RWMutex
	ctx            context.Context
	cancel         context.CancelFunc
}

// NewRedisEventBus creates a new Redis-based event bus. publishTimeout
// bounds every publish; events are advisory and never block callers for long.
func NewRedisEventBus(client *redisclient.Client, publishTimeout time.Duration) providers.EventBus {
	if publishTimeout <= 0 {
		publishTimeout = 2 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisEventBus{
		client:         client,
		publishTimeout: publishTimeout,
		subscriptions:  make(map[string]*redis.PubSub),
		subscribers:    make(map[string]map[chan *entities.Envelope]struct{}),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Publish publishes an envelope to all subscribers of a group
func (b *RedisEventBus) Publish(ctx context.Context, group string, event *entities.Envelope) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.publishTimeout)
	defer cancel()

	if err := b.client.Client().Publish(ctx, group, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	log.Debug().Str("group", group).Str("event_id", event.ID).Str("type", event.Type).
		Msg("published event")
	return nil
}

// Subscribe subscribes to envelopes on a group
func (b *RedisEventBus) Subscribe(ctx context.Context, group string) (<-chan *entities.Envelope, error) {
	b.mu.Lock()

	if _, exists := b.subscriptions[group]; !exists {
		pubsub := b.client.Client().Subscribe(b.ctx, group)
		b.subscriptions[group] = pubsub
		go b.receiveMessages(group, pubsub)
	}

	if b.subscribers[group] == nil {
		b.subscribers[group] = make(map[chan *entities.Envelope]struct{})
	}

	eventChan := make(chan *entities.Envelope, 100)
	b.subscribers[group][eventChan] = struct{}{}
	subscriberCount := len(b.subscribers[group])
	b.mu.Unlock()

	log.Debug().Str("group", group).Int("subscribers", subscriberCount).Msg("subscribed")

	go func() {
		<-ctx.Done()
		b.removeSubscriber(group, eventChan)
	}()

	return eventChan, nil
}

// receiveMessages receives messages from Redis and broadcasts them to subscribers
func (b *RedisEventBus) receiveMessages(group string, pubsub *redis.PubSub) {
	defer func() {
		if err := b.cleanupGroup(group); err != nil {
			log.Warn().Err(err).Str("group", group).Msg("failed to cleanup group")
		}
	}()

	ch := pubsub.Channel()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event entities.Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Warn().Err(err).Str("group", group).Msg("failed to unmarshal event")
				continue
			}

			b.mu.RLock()
			subscribers := b.subscribers[group]
			for subscriber := range subscribers {
				select {
				case subscriber <- &event:
				default:
					// Subscriber channel full, skip event
					log.Warn().Str("group", group).Str("event_id", event.ID).
						Msg("subscriber channel full, skipping event")
				}
			}
			b.mu.RUnlock()
		}
	}
}

func (b *RedisEventBus) removeSubscriber(group string, eventChan chan *entities.Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscribers, exists := b.subscribers[group]
	if !exists {
		return
	}

	if _, ok := subscribers[eventChan]; !ok {
		return
	}

	delete(subscribers, eventChan)
	close(eventChan)

	if len(subscribers) == 0 {
		delete(b.subscribers, group)
		if pubsub, ok := b.subscriptions[group]; ok {
			_ = pubsub.Close()
			delete(b.subscriptions, group)
			log.Debug().Str("group", group).Msg("closed subscription")
		}
	}
}

func (b *RedisEventBus) cleanupGroup(group string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscribers, exists := b.subscribers[group]
	if exists {
		for subscriber := range subscribers {
			close(subscriber)
		}
		delete(b.subscribers, group)
	}

	if pubsub, ok := b.subscriptions[group]; ok {
		if err := pubsub.Close(); err != nil {
			return fmt.Errorf("failed to close subscription %s: %w", group, err)
		}
		delete(b.subscriptions, group)
	}

	return nil
}

// Unsubscribe unsubscribes from a group
func (b *RedisEventBus) Unsubscribe(ctx context.Context, group string) error {
	return b.cleanupGroup(group)
}

// Close closes the event bus and all subscriptions
func (b *RedisEventBus) Close() error {
	b.cancel()

	b.mu.RLock()
	groups := make([]string, 0, len(b.subscriptions))
	for group := range b.subscriptions {
		groups = append(groups, group)
	}
	b.mu.RUnlock()

	var errs []error
	for _, group := range groups {
		if err := b.cleanupGroup(group); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing event bus: %v", errs)
	}
	return nil
}
