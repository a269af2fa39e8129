package bus

import (
	"context"
	"sync"
)

const subscriberBuffer = 64

type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string]map[*memSub]struct{}
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[*memSub]struct{})}
}

type memSub struct {
	bus    *MemoryBus
	roomID string
	ch     chan []byte
	once   sync.Once
}

func (s *memSub) C() <-chan []byte { return s.ch }

func (s *memSub) Close() error {
	s.bus.remove(s)
	return nil
}

func (b *MemoryBus) Publish(ctx context.Context, roomID string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	for s := range b.subs[roomID] {
		select {
		case s.ch <- payload:
		default:
			// subscriber is behind; drop
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, roomID string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &memSub{bus: b, roomID: roomID, ch: make(chan []byte, subscriberBuffer)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.once.Do(func() { close(s.ch) })
		return s, nil
	}
	if b.subs[roomID] == nil {
		b.subs[roomID] = make(map[*memSub]struct{})
	}
	b.subs[roomID][s] = struct{}{}
	return s, nil
}

func (b *MemoryBus) remove(s *memSub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subs[s.roomID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(b.subs, s.roomID)
		}
	}
	s.once.Do(func() { close(s.ch) })
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for roomID, set := range b.subs {
		for s := range set {
			s.once.Do(func() { close(s.ch) })
		}
		delete(b.subs, roomID)
	}
	return nil
}
