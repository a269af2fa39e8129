// Package store is the key-value persistence layer behind rooms and the
// question bank. Every value carries a version that increases by one on
// each write, which lets callers do compare-and-swap updates.
package store

import (
	"context"
	"errors"
	"time"

	apperr "github.com/DoyleJ11/quiz-battle-backend/pkg/errors"
)

var (
	ErrNotFound        = errors.New("key not found")
	ErrVersionConflict = apperr.New(apperr.ErrCodeConcurrencyConflict, "value was modified concurrently")
	ErrTimeout         = apperr.New(apperr.ErrCodeStoreTimeout, "store did not answer in time")
)

// Item is a stored value and its version. Version 0 means "absent".
type Item struct {
	Value   []byte
	Version uint64
}

type Store interface {
	// Get returns ErrNotFound for missing or expired keys.
	Get(ctx context.Context, key string) (Item, error)
	// CompareAndSwap writes value only if the current version equals
	// expected (0 = key must not exist) and returns the new version.
	// A ttl of 0 means no expiry.
	CompareAndSwap(ctx context.Context, key string, expected uint64, value []byte, ttl time.Duration) (uint64, error)
	// Set writes unconditionally.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX writes only if the key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}
