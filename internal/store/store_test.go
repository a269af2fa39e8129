package store

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type backend struct {
	name    string
	store   Store
	advance func(time.Duration)
}

func backends(t *testing.T) []backend {
	t.Helper()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	mem := NewMemoryStore().WithClock(func() time.Time { return now })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	out := []backend{
		{"memory", mem, func(d time.Duration) { now = now.Add(d) }},
		{"redis", NewRedisStore(client), mr.FastForward},
	}
	if pg := postgresBackend(t); pg != nil {
		out = append(out, *pg)
	}
	return out
}

// postgresBackend runs the shared tests against a real database when
// QUIZ_TEST_POSTGRES_DSN is set. The table is emptied first.
func postgresBackend(t *testing.T) *backend {
	t.Helper()
	dsn := os.Getenv("QUIZ_TEST_POSTGRES_DSN")
	if dsn == "" {
		return nil
	}
	db, err := OpenPostgres(dsn, true)
	require.NoError(t, err)
	pg, err := NewPostgresStore(db)
	require.NoError(t, err)
	require.NoError(t, db.Exec("DELETE FROM battle_kv").Error)
	t.Cleanup(func() { _ = pg.Close() })

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	pg.now = func() time.Time { return now }
	return &backend{"postgres", pg, func(d time.Duration) { now = now.Add(d) }}
}

func TestStore_GetMissing(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			_, err := b.store.Get(context.Background(), "nope")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			v, err := b.store.CompareAndSwap(ctx, "room", 0, []byte("one"), 0)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), v)

			// creating twice conflicts
			_, err = b.store.CompareAndSwap(ctx, "room", 0, []byte("again"), 0)
			assert.ErrorIs(t, err, ErrVersionConflict)

			v, err = b.store.CompareAndSwap(ctx, "room", 1, []byte("two"), 0)
			require.NoError(t, err)
			assert.Equal(t, uint64(2), v)

			// stale writer loses
			_, err = b.store.CompareAndSwap(ctx, "room", 1, []byte("stale"), 0)
			assert.ErrorIs(t, err, ErrVersionConflict)

			item, err := b.store.Get(ctx, "room")
			require.NoError(t, err)
			assert.Equal(t, "two", string(item.Value))
			assert.Equal(t, uint64(2), item.Version)
		})
	}
}

func TestStore_SetNX(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ok, err := b.store.SetNX(ctx, "code", []byte("room-1"), 0)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = b.store.SetNX(ctx, "code", []byte("room-2"), 0)
			require.NoError(t, err)
			assert.False(t, ok)

			item, err := b.store.Get(ctx, "code")
			require.NoError(t, err)
			assert.Equal(t, "room-1", string(item.Value))
		})
	}
}

func TestStore_ConcurrentCreateHasOneWinner(t *testing.T) {
	ctx := context.Background()
	const writers = 8
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			var claimed, created atomic.Int32
			var g errgroup.Group
			for i := 0; i < writers; i++ {
				value := []byte{byte('a' + i)}
				g.Go(func() error {
					ok, err := b.store.SetNX(ctx, "br:code:RACE01", value, time.Minute)
					if ok {
						claimed.Add(1)
					}
					return err
				})
				g.Go(func() error {
					_, err := b.store.CompareAndSwap(ctx, "br:room:race", 0, value, time.Minute)
					if err == nil {
						created.Add(1)
						return nil
					}
					if errors.Is(err, ErrVersionConflict) {
						return nil
					}
					return err
				})
			}
			require.NoError(t, g.Wait())
			assert.EqualValues(t, 1, claimed.Load(), "join code claimed more than once")
			assert.EqualValues(t, 1, created.Load(), "room created more than once")

			item, err := b.store.Get(ctx, "br:room:race")
			require.NoError(t, err)
			assert.Equal(t, uint64(1), item.Version)
		})
	}
}

func TestStore_SetBumpsVersion(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			require.NoError(t, b.store.Set(ctx, "bank", []byte("a"), 0))
			require.NoError(t, b.store.Set(ctx, "bank", []byte("b"), 0))

			item, err := b.store.Get(ctx, "bank")
			require.NoError(t, err)
			assert.Equal(t, "b", string(item.Value))
			assert.Equal(t, uint64(2), item.Version)

			require.NoError(t, b.store.Delete(ctx, "bank"))
			_, err = b.store.Get(ctx, "bank")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_TTLExpires(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			_, err := b.store.CompareAndSwap(ctx, "room", 0, []byte("x"), time.Minute)
			require.NoError(t, err)

			b.advance(30 * time.Second)
			_, err = b.store.Get(ctx, "room")
			require.NoError(t, err)

			// a write refreshes the ttl
			_, err = b.store.CompareAndSwap(ctx, "room", 1, []byte("y"), time.Minute)
			require.NoError(t, err)
			b.advance(45 * time.Second)
			_, err = b.store.Get(ctx, "room")
			require.NoError(t, err)

			b.advance(time.Minute)
			_, err = b.store.Get(ctx, "room")
			assert.ErrorIs(t, err, ErrNotFound)

			// an expired key can be created again from version 0
			v, err := b.store.CompareAndSwap(ctx, "room", 0, []byte("z"), time.Minute)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), v)
		})
	}
}

func TestMemoryStore_Sweep(t *testing.T) {
	now := time.Now()
	m := NewMemoryStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", []byte("1"), time.Second))
	require.NoError(t, m.Set(ctx, "b", []byte("2"), 0))
	now = now.Add(2 * time.Second)

	assert.Equal(t, 1, m.Sweep())
	_, err := m.Get(ctx, "b")
	assert.NoError(t, err)
}

// slowStore blocks every call until the context ends.
type slowStore struct {
	*MemoryStore
	gets int
}

func (s *slowStore) Get(ctx context.Context, key string) (Item, error) {
	s.gets++
	<-ctx.Done()
	return Item{}, ctx.Err()
}

func (s *slowStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestWithTimeout(t *testing.T) {
	slow := &slowStore{MemoryStore: NewMemoryStore()}
	s := WithTimeout(slow, 10*time.Millisecond)

	_, err := s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 2, slow.gets, "reads are retried once")

	err = s.Set(context.Background(), "k", []byte("v"), 0)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestWithTimeout_CallerCancel(t *testing.T) {
	slow := &slowStore{MemoryStore: NewMemoryStore()}
	s := WithTimeout(slow, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Get(ctx, "k")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestWithTimeout_PassesThrough(t *testing.T) {
	s := WithTimeout(NewMemoryStore(), time.Second)
	ctx := context.Background()

	v, err := s.CompareAndSwap(ctx, "k", 0, []byte("v"), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)

	item, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(item.Value))
}
