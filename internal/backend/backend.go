package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/DoyleJ11/quiz-battle-backend/internal/bus"
	"github.com/DoyleJ11/quiz-battle-backend/internal/config"
	"github.com/DoyleJ11/quiz-battle-backend/internal/store"
	"github.com/DoyleJ11/quiz-battle-backend/pkg/logger"
)

// Backends holds the opened store and bus for one process.
type Backends struct {
	Store store.Store
	Bus   bus.Bus

	// janitor removes expired entries from backends that only expire lazily.
	janitor func(ctx context.Context) (int64, error)
	closers []func() error
}

// Open connects the store and bus selected by cfg. Every store call is
// bounded by cfg.StoreTimeout.
func Open(ctx context.Context, cfg *config.Config) (*Backends, error) {
	b := &Backends{}

	var client *redis.Client
	if cfg.StoreBackend == config.BackendRedis || cfg.BusBackend == config.BackendRedis {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
		defer cancel()
		c, err := store.NewRedisClient(pingCtx, cfg.RedisAddr(), cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		client = c
		b.closers = append(b.closers, client.Close)
		logger.Info("connected to redis", "addr", cfg.RedisAddr(), "db", cfg.RedisDB)
	}

	var raw store.Store
	switch cfg.StoreBackend {
	case config.BackendRedis:
		raw = store.NewRedisStore(client)
	case config.BackendPostgres:
		db, err := store.OpenPostgres(cfg.GetDSN(), !cfg.IsProduction())
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		pg, err := store.NewPostgresStore(db)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.janitor = pg.PurgeExpired
		b.closers = append(b.closers, pg.Close)
		raw = pg
		logger.Info("connected to postgres", "host", cfg.DBHost, "db", cfg.DBName)
	case config.BackendMemory:
		mem := store.NewMemoryStore()
		b.janitor = func(context.Context) (int64, error) { return int64(mem.Sweep()), nil }
		raw = mem
		if cfg.StoreDefaulted {
			logger.Warn("no store configured, using in-memory store; rooms are lost on restart and not shared between instances")
		}
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	b.Store = store.WithTimeout(raw, cfg.StoreTimeout)

	switch cfg.BusBackend {
	case config.BackendRedis:
		b.Bus = bus.NewRedisBus(client)
	default:
		b.Bus = bus.NewMemoryBus()
	}
	b.closers = append(b.closers, b.Bus.Close)

	logger.Info("backends ready", "store", cfg.StoreBackend, "bus", cfg.BusBackend, "storeTimeout", cfg.StoreTimeout)
	return b, nil
}

// RunJanitor purges expired entries every interval until ctx ends. It
// returns at once for backends that expire keys themselves.
func (b *Backends) RunJanitor(ctx context.Context, interval time.Duration) error {
	if b.janitor == nil {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := b.janitor(ctx)
			if err != nil {
				logger.Warn("expired entry purge failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("purged expired entries", "count", n)
			}
		}
	}
}

// Close releases the bus first, then the store connections.
func (b *Backends) Close() error {
	var err error
	for i := len(b.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, b.closers[i]())
	}
	return err
}
