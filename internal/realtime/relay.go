package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/waylio/waylio-platform/pkg/logging"
)

// DefaultRelayChannel is the Redis pub/sub channel shared by all API instances.
const DefaultRelayChannel = "realtime:events"

// RedisRelay publishes envelopes through Redis so every instance's hub sees them.
type RedisRelay struct {
	client  *redis.Client
	hub     *Hub
	channel string
	logger  *logging.Logger
	ready   chan struct{}
	once    sync.Once
	// subscribed is true while Run holds a confirmed subscription.
	subscribed atomic.Bool
}

func NewRedisRelay(client *redis.Client, hub *Hub, logger *logging.Logger) *RedisRelay {
	if client == nil {
		panic("realtime: redis client required")
	}
	if hub == nil {
		panic("realtime: hub required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisRelay{
		client:  client,
		hub:     hub,
		channel: DefaultRelayChannel,
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// Emit publishes to Redis. Local clients are served directly when publishing
// fails or when this instance is not subscribed, since the relayed copy would
// never arrive.
func (r *RedisRelay) Emit(ctx context.Context, channel, event string, payload any) error {
	env, err := NewEnvelope(channel, event, payload)
	if err != nil {
		return fmt.Errorf("realtime: marshal payload: %w", err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("realtime: marshal envelope: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		r.hub.Deliver(env)
		return fmt.Errorf("realtime: publish: %w", err)
	}
	if !r.subscribed.Load() {
		r.hub.Deliver(env)
	}
	return nil
}

// Ready is closed once the subscription is confirmed.
func (r *RedisRelay) Ready() <-chan struct{} {
	return r.ready
}

// Run subscribes and forwards relayed envelopes to the local hub until ctx ends.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("realtime: subscribe %s: %w", r.channel, err)
	}
	r.subscribed.Store(true)
	defer r.subscribed.Store(false)
	r.once.Do(func() { close(r.ready) })
	r.logger.Info("realtime relay subscribed", "channel", r.channel)

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn("realtime relay: malformed envelope", "error", err)
				continue
			}
			r.hub.Deliver(env)
		}
	}
}
