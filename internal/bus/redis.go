package bus

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBus uses Redis PUBLISH/SUBSCRIBE so every process serving a room
// sees its events.
type RedisBus struct {
	client redis.UniversalClient
}

func NewRedisBus(client redis.UniversalClient) *RedisBus {
	return &RedisBus{client: client}
}

func (b *RedisBus) Publish(ctx context.Context, roomID string, payload []byte) error {
	return b.client.Publish(ctx, Channel(roomID), payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, roomID string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, Channel(roomID))
	// Wait for the subscribe confirmation.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel(roomID), err)
	}

	s := &redisSub{ps: ps, ch: make(chan []byte, subscriberBuffer)}
	go s.pump()
	return s, nil
}

// Close is a no-op; the client is owned by whoever created it.
func (b *RedisBus) Close() error { return nil }

type redisSub struct {
	ps *redis.PubSub
	ch chan []byte
}

func (s *redisSub) pump() {
	defer close(s.ch)
	for msg := range s.ps.Channel() {
		select {
		case s.ch <- []byte(msg.Payload):
		default:
		}
	}
}

func (s *redisSub) C() <-chan []byte { return s.ch }

func (s *redisSub) Close() error { return s.ps.Close() }
