package storage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"minilink/internal/observability"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// localEntry is one persisted key-value pair.
type localEntry struct {
	Name      string `gorm:"column:name;primaryKey;size:191"`
	Value     string `gorm:"column:value;type:text;not null"`
	UpdatedAt time.Time
}

func (localEntry) TableName() string { return "local_entries" }

// SQLStore persists entries in a single SQL table through gorm.
type SQLStore struct {
	db     *gorm.DB
	closed atomic.Bool
}

// OpenSQLite opens (or creates) a file-backed store at path.
// ":memory:" gives a process-local store, useful in tests.
func OpenSQLite(path string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: observability.NewGormLogger(observability.Component("storage"), logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open local store %s: %w", path, err)
	}

	// One connection: writes are applied one at a time and an in-memory
	// database is not split across pool connections.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open local store %s: %w", path, err)
	}
	sqlDB.SetMaxOpenConns(1)

	return NewSQLStore(db)
}

// NewSQLStore wraps an existing gorm connection and migrates the entries table.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&localEntry{}); err != nil {
		return nil, fmt.Errorf("migrate local store: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.closed.Load() {
		return "", false, ErrClosed
	}
	var e localEntry
	err := s.db.WithContext(ctx).Where("name = ?", key).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return e.Value, true, nil
}

func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	e := localEntry{Name: key, Value: value, UpdatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&e).Error
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.WithContext(ctx).Where("name = ?", key).Delete(&localEntry{}).Error
}

// Close releases the underlying connection. It is safe to call more than once.
func (s *SQLStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
