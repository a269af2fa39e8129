package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// KVEntry is one row of the key-value table.
type KVEntry struct {
	Key       string     `gorm:"primaryKey;size:191"`
	Value     []byte     `gorm:"type:bytea;not null"`
	Version   uint64     `gorm:"not null"`
	ExpiresAt *time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (KVEntry) TableName() string { return "battle_kv" }

func (e KVEntry) live(now time.Time) bool {
	return e.ExpiresAt == nil || e.ExpiresAt.After(now)
}

// OpenPostgres connects with the same pool and logger settings used
// across the service.
func OpenPostgres(dsn string, development bool) (*gorm.DB, error) {
	level := gormlogger.Error
	if development {
		level = gormlogger.Warn
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(level),
		NowFunc:                func() time.Time { return time.Now().UTC() },
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db, nil
}

type PostgresStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewPostgresStore migrates the key-value table and returns a store on it.
func NewPostgresStore(db *gorm.DB) (*PostgresStore, error) {
	if err := db.AutoMigrate(&KVEntry{}); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return &PostgresStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (p *PostgresStore) expiry(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := p.now().Add(ttl)
	return &t
}

// current loads the row for key under a row lock. A missing or expired
// row reports version 0; exists tells whether a row was found and locked.
// FOR UPDATE locks nothing when the row is missing, so writes for a
// missing key must go through insertNew.
func (p *PostgresStore) current(tx *gorm.DB, key string) (version uint64, exists bool, err error) {
	var row KVEntry
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if !row.live(p.now()) {
		return 0, true, nil
	}
	return row.Version, true, nil
}

// insertNew creates the row only if no other transaction got there first.
func (p *PostgresStore) insertNew(tx *gorm.DB, row KVEntry) (bool, error) {
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// overwrite replaces a row this transaction holds the lock on.
func (p *PostgresStore) overwrite(tx *gorm.DB, row KVEntry) error {
	return tx.Model(&KVEntry{}).Where("key = ?", row.Key).Updates(map[string]any{
		"value":      row.Value,
		"version":    row.Version,
		"expires_at": row.ExpiresAt,
		"updated_at": p.now(),
	}).Error
}

// write stores row at the version the caller observed. It reports false
// when the key was created concurrently.
func (p *PostgresStore) write(tx *gorm.DB, row KVEntry, exists bool) (bool, error) {
	if exists {
		return true, p.overwrite(tx, row)
	}
	return p.insertNew(tx, row)
}

func (p *PostgresStore) Get(ctx context.Context, key string) (Item, error) {
	var row KVEntry
	err := p.db.WithContext(ctx).
		Where("key = ? AND (expires_at IS NULL OR expires_at > ?)", key, p.now()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, err
	}
	return Item{Value: row.Value, Version: row.Version}, nil
}

func (p *PostgresStore) CompareAndSwap(ctx context.Context, key string, expected uint64, value []byte, ttl time.Duration) (uint64, error) {
	var next uint64
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, exists, err := p.current(tx, key)
		if err != nil {
			return err
		}
		if cur != expected {
			return ErrVersionConflict
		}
		next = cur + 1
		ok, err := p.write(tx, KVEntry{Key: key, Value: value, Version: next, ExpiresAt: p.expiry(ttl)}, exists)
		if err != nil {
			return err
		}
		if !ok {
			return ErrVersionConflict
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// Set writes unconditionally in one statement. An expired row starts
// over at version 1.
func (p *PostgresStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := p.now()
	version := gorm.Expr("CASE WHEN battle_kv.expires_at IS NOT NULL AND battle_kv.expires_at <= ? "+
		"THEN 1 ELSE battle_kv.version + 1 END", now)
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"value":      value,
			"version":    version,
			"expires_at": p.expiry(ttl),
			"updated_at": now,
		}),
	}).Create(&KVEntry{Key: key, Value: value, Version: 1, ExpiresAt: p.expiry(ttl)}).Error
}

func (p *PostgresStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	created := false
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, exists, err := p.current(tx, key)
		if err != nil {
			return err
		}
		if cur != 0 {
			return nil
		}
		created, err = p.write(tx, KVEntry{Key: key, Value: value, Version: 1, ExpiresAt: p.expiry(ttl)}, exists)
		return err
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (p *PostgresStore) Delete(ctx context.Context, key string) error {
	return p.db.WithContext(ctx).Where("key = ?", key).Delete(&KVEntry{}).Error
}

// PurgeExpired removes rows whose TTL has passed.
func (p *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	res := p.db.WithContext(ctx).Where("expires_at IS NOT NULL AND expires_at <= ?", p.now()).Delete(&KVEntry{})
	return res.RowsAffected, res.Error
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (p *PostgresStore) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
