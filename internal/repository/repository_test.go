package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/DoyleJ11/quiz-battle-backend/internal/engine"
	"github.com/DoyleJ11/quiz-battle-backend/internal/store"
	apperr "github.com/DoyleJ11/quiz-battle-backend/pkg/errors"
)

var t0 = time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)

func newRoom(id, code string) engine.Room {
	return engine.NewRoom(id, code, engine.DefaultConfig(), t0)
}

func TestRooms_CreateLoadSave(t *testing.T) {
	ctx := context.Background()
	rooms := NewRooms(store.NewMemoryStore(), time.Hour)

	require.NoError(t, rooms.Create(ctx, newRoom("room-1", "ABC123")))

	id, err := rooms.ResolveCode(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "room-1", id)

	room, v, err := rooms.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
	assert.Len(t, room.Teams, 2)

	room.Teams[0].HP = 150
	v2, err := rooms.Save(ctx, room, v)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v2)

	// a writer holding the old version loses
	_, err = rooms.Save(ctx, room, v)
	assert.ErrorIs(t, err, store.ErrVersionConflict)
	assert.Equal(t, apperr.ErrCodeConcurrencyConflict, apperr.CodeOf(err))
}

func TestRooms_CodeCollision(t *testing.T) {
	ctx := context.Background()
	rooms := NewRooms(store.NewMemoryStore(), time.Hour)

	require.NoError(t, rooms.Create(ctx, newRoom("room-1", "ABC123")))
	err := rooms.Create(ctx, newRoom("room-2", "ABC123"))
	assert.ErrorIs(t, err, ErrCodeTaken)

	_, _, err = rooms.Load(ctx, "room-2")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestRooms_UnknownCode(t *testing.T) {
	rooms := NewRooms(store.NewMemoryStore(), time.Hour)

	for _, code := range []string{"", "  ", "NOPE00"} {
		_, err := rooms.ResolveCode(context.Background(), code)
		assert.Equal(t, apperr.ErrCodeRoomNotFound, apperr.CodeOf(err), "code %q", code)
	}
}

func TestRooms_QuestionIndex(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	rooms := NewRooms(mem, time.Hour)

	idx, err := rooms.QuestionIndex(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	require.NoError(t, rooms.SetQuestionIndex(ctx, "room-1", 3))
	idx, err = rooms.QuestionIndex(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, 3, idx)

	require.NoError(t, mem.Set(ctx, QuestionIndexKey("room-1"), []byte("garbage"), 0))
	idx, err = rooms.QuestionIndex(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
}

// Two processes sharing one Redis: the second writer must reload.
func TestRooms_ConcurrentWritersOnRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	a := NewRooms(store.NewRedisStore(client), time.Hour)
	b := NewRooms(store.NewRedisStore(client), time.Hour)
	require.NoError(t, a.Create(ctx, newRoom("room-1", "XYZ789")))

	ra, va, err := a.Load(ctx, "room-1")
	require.NoError(t, err)
	rb, vb, err := b.Load(ctx, "room-1")
	require.NoError(t, err)

	ra.Teams[0].HP = 190
	_, err = a.Save(ctx, ra, va)
	require.NoError(t, err)

	rb.Teams[1].HP = 180
	_, err = b.Save(ctx, rb, vb)
	require.ErrorIs(t, err, store.ErrVersionConflict)

	// retry from a fresh read keeps both changes
	rb, vb, err = b.Load(ctx, "room-1")
	require.NoError(t, err)
	rb.Teams[1].HP = 180
	_, err = b.Save(ctx, rb, vb)
	require.NoError(t, err)

	final, _, err := a.Load(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, 190, final.Teams[0].HP)
	assert.Equal(t, 180, final.Teams[1].HP)
}

func TestNormalizeBank(t *testing.T) {
	raw := []RawQuestion{
		{ID: "cap", Q: "Capital of France?", Options: []string{"Berlin", "Paris"}, Answer: "B", Seconds: 15},
		{Q: "2 + 2?", Options: []string{"3", "4", "5"}, Answer: "4"},
		{ID: "bad-answer", Q: "?", Options: []string{"x", "y"}, Answer: "z"},
		{ID: "no-options", Q: "?", Options: []string{"x"}, Answer: "A"},
		{ID: "no-text", Q: " ", Options: []string{"x", "y"}, Answer: "A"},
	}

	got, err := NormalizeBank(raw)
	require.Len(t, got, 2)
	assert.Len(t, multierr.Errors(err), 3)

	assert.Equal(t, "cap", got[0].ID)
	assert.Equal(t, 1, got[0].CorrectIndex)
	assert.Equal(t, 15000, got[0].TimeLimitMs)

	assert.Equal(t, "q-2", got[1].ID)
	assert.Equal(t, 1, got[1].CorrectIndex)
	assert.Equal(t, 20000, got[1].TimeLimitMs)
}

func TestBank_ImportAndRead(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	bank := NewBank(mem)

	assert.Empty(t, bank.Questions(ctx))

	n, err := bank.ImportFile(ctx, []byte(`[
		{"id": "q1", "q": "Largest ocean?", "options": ["Atlantic", "Pacific"], "answer": "Pacific"},
		{"id": "q2", "q": "Broken", "options": ["only"], "answer": "A"}
	]`))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	qs := bank.Questions(ctx)
	require.Len(t, qs, 1)
	assert.Equal(t, "q1", qs[0].ID)

	// the raw format is kept alongside
	_, err = mem.Get(ctx, RawBankKey)
	assert.NoError(t, err)
}

func TestBank_MalformedReadsAsEmpty(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	require.NoError(t, mem.Set(ctx, BankKey, []byte("{not json"), 0))

	assert.Empty(t, NewBank(mem).Questions(ctx))
}

func TestPick(t *testing.T) {
	q, next := Pick(nil, 7)
	assert.Equal(t, engine.FallbackQuestionID, q.ID)
	assert.Equal(t, 0, next)

	bank := []engine.Question{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	var seen []string
	idx := 0
	for n := 0; n < 5; n++ {
		q, idx = Pick(bank, idx)
		seen = append(seen, q.ID)
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b"}, seen)

	// a stale index beyond the bank size wraps
	q, next = Pick(bank, 4)
	assert.Equal(t, "b", q.ID)
	assert.Equal(t, 2, next)
}
