package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	relayInitialBackoff = time.Second
	relayMaxBackoff     = 30 * time.Second
)

// RedisRelay delivers envelopes to the local hub and fans them out to other
// instances through a Redis Pub/Sub channel.
type RedisRelay struct {
	client     *redis.Client
	channel    string
	instanceID string
	hub        *Hub
	logger     *zap.Logger
}

// NewRedisRelay builds a relay bound to channel.
func NewRedisRelay(client *redis.Client, channel string, hub *Hub, logger *zap.Logger) *RedisRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{
		client:     client,
		channel:    channel,
		instanceID: uuid.NewString(),
		hub:        hub,
		logger:     logger,
	}
}

// InstanceID identifies this process on the channel.
func (r *RedisRelay) InstanceID() string {
	return r.instanceID
}

// Publish delivers locally first, then relays. A relay failure is logged and
// does not fail the caller; local clients have already been served.
func (r *RedisRelay) Publish(ctx context.Context, env Envelope) error {
	env.InstanceID = r.instanceID
	r.hub.Deliver(env)

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal realtime envelope: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		r.logger.Warn("relay realtime envelope",
			zap.String("channel", r.channel),
			zap.String("event", env.Event),
			zap.Error(err),
		)
	}
	return nil
}

// Run subscribes until ctx is cancelled, reconnecting with exponential backoff.
func (r *RedisRelay) Run(ctx context.Context) error {
	var backoff reconnectBackoff
	for {
		subscribed, err := r.subscribe(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := backoff.next(subscribed)
		r.logger.Warn("realtime relay disconnected, reconnecting",
			zap.String("channel", r.channel),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// reconnectBackoff doubles the delay up to relayMaxBackoff. A confirmed
// subscription restarts the schedule.
type reconnectBackoff struct {
	current time.Duration
}

func (b *reconnectBackoff) next(subscribed bool) time.Duration {
	if subscribed || b.current == 0 {
		b.current = relayInitialBackoff
	}
	delay := b.current
	b.current = min(b.current*2, relayMaxBackoff)
	return delay
}

// subscribe reports whether the subscription was confirmed before it ended.
func (r *RedisRelay) subscribe(ctx context.Context) (bool, error) {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return false, fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.logger.Info("realtime relay subscribed", zap.String("channel", r.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return true, nil
			}
			r.handle(msg.Payload)
		}
	}
}

func (r *RedisRelay) handle(payload string) {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.logger.Warn("decode relayed envelope", zap.Error(err))
		return
	}
	if env.InstanceID == r.instanceID {
		return
	}
	r.hub.Deliver(env)
}
