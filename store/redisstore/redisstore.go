// Package redisstore keeps tasks as JSON records in Redis and provides the
// per-task poll lock.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/feitianbubu/vidgate/config"
	"github.com/feitianbubu/vidgate/model"
	"github.com/feitianbubu/vidgate/store"
)

const (
	defaultKeyPrefix  = "vidgate:task:"
	defaultLockPrefix = "vidgate:lock:"
)

// Store implements store.TaskStore on Redis.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ store.TaskStore = (*Store)(nil)

// New wraps client. Keys are prefix+local id; a zero ttl keeps records forever.
func New(client *redis.Client, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

// NewClient connects to the server in cfg and checks it answers.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Open connects using cfg and returns the store.
func Open(ctx context.Context, cfg config.RedisConfig) (*Store, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(client, cfg.KeyPrefix, cfg.TTL), nil
}

// Client returns the underlying client, shared with the Locker.
func (s *Store) Client() *redis.Client {
	return s.client
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

// NewTaskID returns a random UUID.
func (s *Store) NewTaskID(context.Context) (string, error) {
	return uuid.NewString(), nil
}

// Create stores a task unless its id is taken.
func (s *Store) Create(ctx context.Context, task *model.Task) error {
	if task == nil || task.LocalTaskID == "" {
		return model.NewStorageError("create task", errors.New("task has no local id"))
	}
	data, err := json.Marshal(task)
	if err != nil {
		return model.NewStorageError("create task", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(task.LocalTaskID), data, s.ttl).Result()
	if err != nil {
		return model.NewStorageError("create task", err)
	}
	if !ok {
		return model.NewStorageError("create task", fmt.Errorf("task %s already exists", task.LocalTaskID))
	}
	return nil
}

// Get loads a task.
func (s *Store) Get(ctx context.Context, localTaskID string) (*model.Task, error) {
	data, err := s.client.Get(ctx, s.key(localTaskID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, model.NewNotFoundError(localTaskID)
		}
		return nil, model.NewStorageError("get task", err)
	}

	var task model.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, model.NewStorageError("get task", fmt.Errorf("decode task %s: %w", localTaskID, err))
	}
	return &task, nil
}

// Update overwrites an existing task and refreshes its ttl.
func (s *Store) Update(ctx context.Context, task *model.Task) error {
	if task == nil {
		return model.NewStorageError("update task", errors.New("nil task"))
	}
	data, err := json.Marshal(task)
	if err != nil {
		return model.NewStorageError("update task", err)
	}

	ok, err := s.client.SetXX(ctx, s.key(task.LocalTaskID), data, s.ttl).Result()
	if err != nil {
		return model.NewStorageError("update task", err)
	}
	if !ok {
		return model.NewNotFoundError(task.LocalTaskID)
	}
	return nil
}
