package store

import (
	"context"
	"errors"
	"net"
	"os"
	"time"
)

// timeoutStore bounds every call with a deadline. Reads are retried once
// on timeout; writes are not, since a timed-out write may have landed.
type timeoutStore struct {
	inner   Store
	timeout time.Duration
}

// WithTimeout wraps s so that each call fails with ErrTimeout when it
// runs longer than d.
func WithTimeout(s Store, d time.Duration) Store {
	return &timeoutStore{inner: s, timeout: d}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// translate turns a deadline hit into ErrTimeout unless the caller's own
// context was the one that ended.
func translate(parent context.Context, err error) error {
	if err == nil || parent.Err() != nil {
		return err
	}
	if isTimeout(err) {
		return ErrTimeout
	}
	return err
}

func (t *timeoutStore) do(ctx context.Context, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return translate(ctx, fn(cctx))
}

func (t *timeoutStore) Get(ctx context.Context, key string) (Item, error) {
	var item Item
	read := func(c context.Context) error {
		var err error
		item, err = t.inner.Get(c, key)
		return err
	}
	err := t.do(ctx, read)
	if errors.Is(err, ErrTimeout) {
		err = t.do(ctx, read)
	}
	return item, err
}

func (t *timeoutStore) CompareAndSwap(ctx context.Context, key string, expected uint64, value []byte, ttl time.Duration) (uint64, error) {
	var v uint64
	err := t.do(ctx, func(c context.Context) error {
		var err error
		v, err = t.inner.CompareAndSwap(c, key, expected, value, ttl)
		return err
	})
	return v, err
}

func (t *timeoutStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return t.do(ctx, func(c context.Context) error {
		return t.inner.Set(c, key, value, ttl)
	})
}

func (t *timeoutStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	var ok bool
	err := t.do(ctx, func(c context.Context) error {
		var err error
		ok, err = t.inner.SetNX(c, key, value, ttl)
		return err
	})
	return ok, err
}

func (t *timeoutStore) Delete(ctx context.Context, key string) error {
	return t.do(ctx, func(c context.Context) error {
		return t.inner.Delete(c, key)
	})
}

func (t *timeoutStore) Ping(ctx context.Context) error {
	return t.do(ctx, t.inner.Ping)
}

func (t *timeoutStore) Close() error { return t.inner.Close() }
