// Package redis implements the room broadcast topic on Redis Pub/Sub.
// Delivery is at-most-once in publish order per subscriber; dropped
// messages are healed by the sync protocol's heartbeats, never retried
// here.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/couchsync/server/internal/protocol"
)

type repo struct {
	rc *redis.Client
}

func NewRepo(rc *redis.Client) *repo {
	return &repo{rc: rc}
}

func (r repo) getTopic(roomId string) string {
	return "watch_room_" + roomId
}

func (r repo) Publish(ctx context.Context, roomId string, env *protocol.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := r.rc.Publish(ctx, r.getTopic(roomId), data).Err(); err != nil {
		return fmt.Errorf("failed to publish to room topic: %w", err)
	}

	return nil
}

type Subscription struct {
	pubsub *redis.PubSub
	ch     chan protocol.Envelope
}

func (r repo) Subscribe(ctx context.Context, roomId string) (*Subscription, error) {
	pubsub := r.rc.Subscribe(ctx, r.getTopic(roomId))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to room topic: %w", err)
	}

	sub := &Subscription{
		pubsub: pubsub,
		ch:     make(chan protocol.Envelope, 16),
	}

	go func() {
		defer close(sub.ch)
		for msg := range pubsub.Channel() {
			var env protocol.Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				continue
			}
			sub.ch <- env
		}
	}()

	return sub, nil
}

// Channel yields envelopes until the subscription is closed.
func (s *Subscription) Channel() <-chan protocol.Envelope {
	return s.ch
}

func (s *Subscription) Close() error {
	return s.pubsub.Close()
}
