// Package bus carries room events between processes. Delivery is
// at-most-once: slow subscribers and unreachable backplanes lose events.
package bus

import (
	"context"
	"time"

	"github.com/DoyleJ11/quiz-battle-backend/pkg/logger"
)

// Channel is the pub/sub channel for a room's events.
func Channel(roomID string) string { return "br:room:" + roomID + ":events" }

type Bus interface {
	Publish(ctx context.Context, roomID string, payload []byte) error
	// Subscribe returns once the subscription is active, so anything
	// published afterwards is delivered.
	Subscribe(ctx context.Context, roomID string) (Subscription, error)
	Close() error
}

type Subscription interface {
	// C is closed when the subscription ends.
	C() <-chan []byte
	Close() error
}

const publishTimeout = 2 * time.Second

// PublishBestEffort publishes and only logs failures. Room mutations are
// already saved when events go out, so a publish error must not fail them.
func PublishBestEffort(ctx context.Context, b Bus, roomID string, payload []byte) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := b.Publish(ctx, roomID, payload); err != nil {
		logger.Warn("event publish failed", "roomId", roomID, "error", err)
	}
}
