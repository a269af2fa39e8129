// Package repository maps rooms and the question bank onto store keys.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DoyleJ11/quiz-battle-backend/internal/engine"
	"github.com/DoyleJ11/quiz-battle-backend/internal/store"
	apperr "github.com/DoyleJ11/quiz-battle-backend/pkg/errors"
	"github.com/DoyleJ11/quiz-battle-backend/pkg/logger"
)

const keyPrefix = "br:"

func RoomKey(id string) string { return keyPrefix + "room:" + id }
func CodeKey(code string) string { return keyPrefix + "code:" + strings.ToUpper(code) }
func QuestionIndexKey(id string) string { return RoomKey(id) + ":qIndex" }

var (
	ErrRoomNotFound = apperr.New(apperr.ErrCodeRoomNotFound, "room not found")
	// ErrCodeTaken means another room already holds the join code.
	ErrCodeTaken = errors.New("room code already in use")
)

// Rooms loads and saves room records. Every save is a compare-and-swap on
// the version returned by Load.
type Rooms struct {
	store store.Store
	ttl   time.Duration
}

func NewRooms(s store.Store, ttl time.Duration) *Rooms {
	return &Rooms{store: s, ttl: ttl}
}

// mapErr turns store errors into API errors. Unexpected failures are
// logged here with their context and reported generically.
func mapErr(op, roomID string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrRoomNotFound
	case errors.Is(err, store.ErrVersionConflict), errors.Is(err, store.ErrTimeout):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	logger.Error("persistence failure", "op", op, "roomId", roomID, "error", err)
	return apperr.Wrap(err, apperr.ErrCodePersistence, "storage unavailable")
}

// Create claims room.Code and writes the initial record.
func (r *Rooms) Create(ctx context.Context, room engine.Room) error {
	ok, err := r.store.SetNX(ctx, CodeKey(room.Code), []byte(room.ID), r.ttl)
	if err != nil {
		return mapErr("claim_code", room.ID, err)
	}
	if !ok {
		return ErrCodeTaken
	}

	if _, err := r.save(ctx, room, 0); err != nil {
		if delErr := r.store.Delete(ctx, CodeKey(room.Code)); delErr != nil {
			logger.Warn("failed to release room code", "code", room.Code, "error", delErr)
		}
		return err
	}
	return nil
}

// ResolveCode returns the id of the room holding code (case-insensitive).
func (r *Rooms) ResolveCode(ctx context.Context, code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", ErrRoomNotFound
	}
	item, err := r.store.Get(ctx, CodeKey(code))
	if err != nil {
		return "", mapErr("resolve_code", "", err)
	}
	return string(item.Value), nil
}

func (r *Rooms) Load(ctx context.Context, id string) (engine.Room, uint64, error) {
	item, err := r.store.Get(ctx, RoomKey(id))
	if err != nil {
		return engine.Room{}, 0, mapErr("load_room", id, err)
	}
	var room engine.Room
	if err := json.Unmarshal(item.Value, &room); err != nil {
		return engine.Room{}, 0, mapErr("decode_room", id, fmt.Errorf("decode room: %w", err))
	}
	if room.Players == nil {
		room.Players = map[string]engine.Player{}
	}
	return room, item.Version, nil
}

// Save writes room if the stored version still equals version and
// returns the new version. The room and code keys get a fresh TTL.
func (r *Rooms) Save(ctx context.Context, room engine.Room, version uint64) (uint64, error) {
	next, err := r.save(ctx, room, version)
	if err != nil {
		return 0, err
	}
	if err := r.store.Set(ctx, CodeKey(room.Code), []byte(room.ID), r.ttl); err != nil {
		logger.Warn("failed to refresh room code ttl", "roomId", room.ID, "error", err)
	}
	return next, nil
}

func (r *Rooms) save(ctx context.Context, room engine.Room, version uint64) (uint64, error) {
	data, err := json.Marshal(room)
	if err != nil {
		return 0, mapErr("encode_room", room.ID, fmt.Errorf("encode room: %w", err))
	}
	next, err := r.store.CompareAndSwap(ctx, RoomKey(room.ID), version, data, r.ttl)
	if err != nil {
		return 0, mapErr("save_room", room.ID, err)
	}
	return next, nil
}

// QuestionIndex returns the room's rotation index, 0 when unset or
// unreadable.
func (r *Rooms) QuestionIndex(ctx context.Context, id string) (int, error) {
	item, err := r.store.Get(ctx, QuestionIndexKey(id))
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, mapErr("load_qindex", id, err)
	}
	var idx int
	if _, err := fmt.Sscan(string(item.Value), &idx); err != nil || idx < 0 {
		logger.Warn("ignoring malformed question index", "roomId", id, "value", string(item.Value))
		return 0, nil
	}
	return idx, nil
}

func (r *Rooms) SetQuestionIndex(ctx context.Context, id string, idx int) error {
	return mapErr("save_qindex", id, r.store.Set(ctx, QuestionIndexKey(id), []byte(fmt.Sprint(idx)), r.ttl))
}
