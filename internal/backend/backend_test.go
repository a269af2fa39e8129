package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/quiz-battle-backend/internal/bus"
	"github.com/DoyleJ11/quiz-battle-backend/internal/config"
	"github.com/DoyleJ11/quiz-battle-backend/internal/store"
)

func TestOpen_Memory(t *testing.T) {
	ctx := context.Background()
	b, err := Open(ctx, &config.Config{
		StoreBackend: config.BackendMemory,
		BusBackend:   config.BackendMemory,
		StoreTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Store.Set(ctx, "k", []byte("v"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	jctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- b.RunJanitor(jctx, 5*time.Millisecond) }()
	time.Sleep(30 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	_, err = b.Store.Get(ctx, "k")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestOpen_RedisSharesClient(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	b, err := Open(ctx, &config.Config{
		StoreBackend: config.BackendRedis,
		BusBackend:   config.BackendRedis,
		RedisHost:    mr.Host(),
		RedisPort:    mr.Port(),
		StoreTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Store.CompareAndSwap(ctx, "br:room:x", 0, []byte("{}"), time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("br:room:x"))

	sub, err := b.Bus.Subscribe(ctx, "x")
	require.NoError(t, err)
	defer sub.Close()
	require.NoError(t, b.Bus.Publish(ctx, "x", []byte(`{"type":"PING"}`)))

	select {
	case msg := <-sub.C():
		assert.JSONEq(t, `{"type":"PING"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("no message on " + bus.Channel("x"))
	}

	// redis expires keys itself
	require.NoError(t, b.RunJanitor(ctx, time.Millisecond))
}

func TestOpen_RedisUnreachable(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{
		StoreBackend: config.BackendRedis,
		BusBackend:   config.BackendRedis,
		RedisHost:    "127.0.0.1",
		RedisPort:    "1",
		StoreTimeout: 2 * time.Second,
	})
	require.Error(t, err)
}
