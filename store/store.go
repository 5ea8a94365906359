// Package store declares the persistence contracts the gateway consumes.
// Implementations live in the memory, gormstore and redisstore subpackages.
package store

import (
	"context"
	"time"

	"github.com/feitianbubu/vidgate/model"
)

// TaskStore persists gateway tasks.
//
// Get and Update return a not_found model.Error for unknown ids. Create
// refuses an id that already exists. Implementations must be safe for
// concurrent use.
type TaskStore interface {
	NewTaskID(ctx context.Context) (string, error)
	Create(ctx context.Context, task *model.Task) error
	Get(ctx context.Context, localTaskID string) (*model.Task, error)
	Update(ctx context.Context, task *model.Task) error
}

// Locker hands out short-lived exclusive locks keyed by task id.
type Locker interface {
	// TryLock acquires key for ttl. When the lock is held elsewhere it
	// returns ok=false and a nil error.
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}
