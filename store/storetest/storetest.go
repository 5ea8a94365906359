// Package storetest runs the same behavioural checks against every TaskStore.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feitianbubu/vidgate/model"
	"github.com/feitianbubu/vidgate/store"
)

// NewTask returns a SUBMITTED task with the given id.
func NewTask(id string) *model.Task {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return &model.Task{
		LocalTaskID:    id,
		ProviderTaskID: "prov-" + id,
		Provider:       model.ProviderKling,
		ModelFamily:    "kling-1.0",
		Modality:       model.ModalityTextToVideo,
		Status:         model.StatusSubmitted,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Run exercises s.
func Run(t *testing.T, s store.TaskStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("NewTaskIDUnique", func(t *testing.T) {
		a, err := s.NewTaskID(ctx)
		require.NoError(t, err)
		b, err := s.NewTaskID(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, a)
		assert.NotEqual(t, a, b)
	})

	t.Run("CreateGet", func(t *testing.T) {
		id, err := s.NewTaskID(ctx)
		require.NoError(t, err)
		task := NewTask(id)
		require.NoError(t, s.Create(ctx, task))

		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, task.LocalTaskID, got.LocalTaskID)
		assert.Equal(t, task.ProviderTaskID, got.ProviderTaskID)
		assert.Equal(t, task.Provider, got.Provider)
		assert.Equal(t, task.ModelFamily, got.ModelFamily)
		assert.Equal(t, task.Modality, got.Modality)
		assert.Equal(t, task.Status, got.Status)
		assert.True(t, task.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		id, err := s.NewTaskID(ctx)
		require.NoError(t, err)
		require.NoError(t, s.Create(ctx, NewTask(id)))

		err = s.Create(ctx, NewTask(id))
		require.Error(t, err)
		assert.True(t, model.IsKind(err, model.KindStorage))
	})

	t.Run("GetUnknown", func(t *testing.T) {
		_, err := s.Get(ctx, "missing")
		require.Error(t, err)
		assert.True(t, model.IsKind(err, model.KindNotFound))
		assert.ErrorIs(t, err, model.ErrTaskNotFound)
	})

	t.Run("Update", func(t *testing.T) {
		id, err := s.NewTaskID(ctx)
		require.NoError(t, err)
		task := NewTask(id)
		require.NoError(t, s.Create(ctx, task))

		later := task.UpdatedAt.Add(time.Minute)
		require.NoError(t, task.Complete("https://cdn/v.mp4", "https://cdn/c.jpg", later))
		require.NoError(t, s.Update(ctx, task))

		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.StatusCompleted, got.Status)
		assert.Equal(t, "https://cdn/v.mp4", got.ResultVideoURL)
		assert.Equal(t, "https://cdn/c.jpg", got.ResultCoverURL)
		assert.True(t, later.Equal(got.UpdatedAt))
	})

	t.Run("UpdateClearsFields", func(t *testing.T) {
		id, err := s.NewTaskID(ctx)
		require.NoError(t, err)
		task := NewTask(id)
		task.ErrorDetail = "transient"
		require.NoError(t, s.Create(ctx, task))

		task.ErrorDetail = ""
		require.NoError(t, s.Update(ctx, task))

		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, got.ErrorDetail)
	})

	t.Run("UpdateUnknown", func(t *testing.T) {
		err := s.Update(ctx, NewTask("missing-update"))
		require.Error(t, err)
		assert.True(t, model.IsKind(err, model.KindNotFound))
	})

	t.Run("ReturnedCopyIsDetached", func(t *testing.T) {
		id, err := s.NewTaskID(ctx)
		require.NoError(t, err)
		require.NoError(t, s.Create(ctx, NewTask(id)))

		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		got.Status = model.StatusFailed

		again, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.StatusSubmitted, again.Status)
	})

	t.Run("ConcurrentCreate", func(t *testing.T) {
		var wg sync.WaitGroup
		ids := make([]string, 8)
		for i := range ids {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id, err := s.NewTaskID(ctx)
				if !assert.NoError(t, err) {
					return
				}
				ids[i] = id
				assert.NoError(t, s.Create(ctx, NewTask(id)))
			}(i)
		}
		wg.Wait()

		for _, id := range ids {
			_, err := s.Get(ctx, id)
			assert.NoError(t, err)
		}
	})
}
