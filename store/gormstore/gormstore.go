// Package gormstore is a TaskStore on a SQL database through GORM.
// Postgres is the production driver; SQLite serves single-node setups.
package gormstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/feitianbubu/vidgate/config"
	"github.com/feitianbubu/vidgate/model"
	"github.com/feitianbubu/vidgate/store"
)

// Store implements store.TaskStore.
type Store struct {
	db *gorm.DB
}

var _ store.TaskStore = (*Store)(nil)

// New wraps an open database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Open connects to the database selected by cfg.Driver and migrates the
// task table.
func Open(cfg config.StoreConfig) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.StorePostgres:
		dialector = postgres.Open(cfg.Database.DSN())
	case config.StoreSQLite:
		dialector = sqlite.Open(cfg.Database.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: postgres, sqlite)", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	s := New(db)
	if err := s.Migrate(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates or updates the task table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&taskEntity{}); err != nil {
		return fmt.Errorf("migrate tasks: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NewTaskID returns a random UUID.
func (s *Store) NewTaskID(context.Context) (string, error) {
	return uuid.NewString(), nil
}

// Create inserts a task.
func (s *Store) Create(ctx context.Context, task *model.Task) error {
	if task == nil || task.LocalTaskID == "" {
		return model.NewStorageError("create task", errors.New("task has no local id"))
	}
	if err := s.db.WithContext(ctx).Create(fromDomain(task)).Error; err != nil {
		return model.NewStorageError("create task", fmt.Errorf("create task: %w", err))
	}
	return nil
}

// Get retrieves a task by local id.
func (s *Store) Get(ctx context.Context, localTaskID string) (*model.Task, error) {
	var e taskEntity
	if err := s.db.WithContext(ctx).First(&e, "local_task_id = ?", localTaskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NewNotFoundError(localTaskID)
		}
		return nil, model.NewStorageError("get task", fmt.Errorf("get task by id: %w", err))
	}
	return e.toDomain(), nil
}

// Update overwrites the mutable columns of an existing task.
func (s *Store) Update(ctx context.Context, task *model.Task) error {
	if task == nil {
		return model.NewStorageError("update task", errors.New("nil task"))
	}
	e := fromDomain(task)
	res := s.db.WithContext(ctx).
		Model(&taskEntity{}).
		Where("local_task_id = ?", e.LocalTaskID).
		Updates(e.columns())
	if res.Error != nil {
		return model.NewStorageError("update task", fmt.Errorf("update task: %w", res.Error))
	}
	if res.RowsAffected == 0 {
		return model.NewNotFoundError(task.LocalTaskID)
	}
	return nil
}
