package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tovell/argus-api/internal/domain"
	"github.com/tovell/argus-api/internal/store"
)

type serviceFixture struct {
	store    *mockBatchTaskStore
	files    *mockFileStore
	cache    *mockProgressCache
	emitter  *mockEventEmitter
	canceler *mockCanceler
	svc      TaskService
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	f := &serviceFixture{
		store:    newMockBatchTaskStore(),
		files:    newMockFileStore(),
		cache:    newMockProgressCache(),
		emitter:  &mockEventEmitter{},
		canceler: &mockCanceler{},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := NewTaskService(f.store, f.files, f.cache, f.emitter, f.canceler, logger)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func twoFileInput() CreateBatchInput {
	return CreateBatchInput{
		Name: "holiday-photos",
		Files: []BatchFileInput{
			{FileName: "a.jpg", ContentType: "image/jpeg", Payload: []byte("aaa")},
			{FileName: "b.png", ContentType: "image/png", Payload: []byte("bbbb")},
		},
	}
}

func TestNewTaskServiceValidatesDependencies(t *testing.T) {
	t.Parallel()

	_, err := NewTaskService(nil, newMockFileStore(), nil, &mockEventEmitter{}, nil, nil)
	assert.Error(t, err)

	_, err = NewTaskService(newMockBatchTaskStore(), nil, nil, &mockEventEmitter{}, nil, nil)
	assert.Error(t, err)

	_, err = NewTaskService(newMockBatchTaskStore(), newMockFileStore(), nil, nil, nil, nil)
	assert.Error(t, err)

	// cache and canceler are optional
	_, err = NewTaskService(newMockBatchTaskStore(), newMockFileStore(), nil, &mockEventEmitter{}, nil, nil)
	assert.NoError(t, err)
}

func TestCreateBatchTask(t *testing.T) {
	t.Parallel()

	t.Run("creates task, stores files and emits event", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		userID := uuid.New()

		task, err := f.svc.CreateBatchTask(context.Background(), userID, twoFileInput())
		require.NoError(t, err)

		assert.Equal(t, domain.TaskStatusPending, task.Status)
		assert.Equal(t, 2, task.TotalCount)
		assert.Equal(t, 0, task.ProcessedCount)
		assert.Equal(t, int64(7), task.TotalSize)
		assert.Equal(t, "holiday-photos", task.Name)

		// Both payloads stored under the task prefix
		assert.Equal(t, 2, f.files.count())

		// Items persisted with handles
		items, err := f.store.GetItems(context.Background(), task.ID)
		require.NoError(t, err)
		require.Len(t, items, 2)
		for _, item := range items {
			assert.Equal(t, domain.ItemStatusPending, item.Status)
			assert.NotEmpty(t, item.StorageHandle)
		}

		// Exactly one processing request emitted
		emitted := f.emitter.emitted()
		require.Len(t, emitted, 1)
		assert.Equal(t, "batch_recognition", emitted[0].Type)
	})

	t.Run("defaults blank name", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)

		input := twoFileInput()
		input.Name = ""

		task, err := f.svc.CreateBatchTask(context.Background(), uuid.New(), input)
		require.NoError(t, err)
		assert.NotEmpty(t, task.Name)
	})

	t.Run("rejects empty file set", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)

		_, err := f.svc.CreateBatchTask(context.Background(), uuid.New(), CreateBatchInput{Name: "empty"})
		assert.ErrorIs(t, err, ErrValidation)
		assert.Empty(t, f.emitter.emitted())
	})

	t.Run("rejects file without content", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)

		input := CreateBatchInput{Files: []BatchFileInput{{FileName: "a.jpg"}}}
		_, err := f.svc.CreateBatchTask(context.Background(), uuid.New(), input)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("cleans up stored files when persistence fails", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		f.store.createErr = errors.New("database down")

		_, err := f.svc.CreateBatchTask(context.Background(), uuid.New(), twoFileInput())
		assert.Error(t, err)
		assert.Equal(t, 0, f.files.count())
		assert.Empty(t, f.emitter.emitted())
	})

	t.Run("cleans up stored files when an upload fails midway", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		f.files.failAfter = 1 // second Put fails

		_, err := f.svc.CreateBatchTask(context.Background(), uuid.New(), twoFileInput())
		assert.Error(t, err)
		assert.Equal(t, 0, f.files.count())
	})
}

func TestGetTaskDetail(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	userID := uuid.New()

	task, err := f.svc.CreateBatchTask(context.Background(), userID, twoFileInput())
	require.NoError(t, err)

	t.Run("returns task with items", func(t *testing.T) {
		detail, err := f.svc.GetTaskDetail(context.Background(), task.ID, userID)
		require.NoError(t, err)
		assert.Equal(t, task.ID, detail.Task.ID)
		assert.Len(t, detail.Items, 2)
	})

	t.Run("foreign task reads as missing", func(t *testing.T) {
		_, err := f.svc.GetTaskDetail(context.Background(), task.ID, uuid.New())
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})

	t.Run("unknown task", func(t *testing.T) {
		_, err := f.svc.GetTaskDetail(context.Background(), uuid.New(), userID)
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})
}

func TestGetTaskProgress(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	userID := uuid.New()

	task, err := f.svc.CreateBatchTask(context.Background(), userID, twoFileInput())
	require.NoError(t, err)

	t.Run("cache miss falls through and populates", func(t *testing.T) {
		snapshot, err := f.svc.GetTaskProgress(context.Background(), task.ID, userID)
		require.NoError(t, err)
		assert.Equal(t, task.ID, snapshot.TaskID)
		assert.Equal(t, 2, snapshot.TotalCount)
		assert.Equal(t, 0, snapshot.ProcessedCount)

		cached, err := f.cache.Get(context.Background(), task.ID)
		require.NoError(t, err)
		assert.NotNil(t, cached)
	})

	t.Run("cache hit served without store", func(t *testing.T) {
		cached := store.ProgressOf(task)
		cached.ProcessedCount = 1
		cached.Progress = 50
		require.NoError(t, f.cache.Set(context.Background(), cached))

		snapshot, err := f.svc.GetTaskProgress(context.Background(), task.ID, userID)
		require.NoError(t, err)
		assert.Equal(t, 1, snapshot.ProcessedCount)
		assert.Equal(t, 50, snapshot.Progress)
	})

	t.Run("cache hit hides foreign tasks", func(t *testing.T) {
		_, err := f.svc.GetTaskProgress(context.Background(), task.ID, uuid.New())
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})

	t.Run("cache failure degrades to store read", func(t *testing.T) {
		f.cache.getErr = errors.New("redis down")
		defer func() { f.cache.getErr = nil }()

		snapshot, err := f.svc.GetTaskProgress(context.Background(), task.ID, userID)
		require.NoError(t, err)
		assert.Equal(t, task.ID, snapshot.TaskID)
	})
}

func TestDeleteTask(t *testing.T) {
	t.Parallel()

	t.Run("removes task, files, cache and cancels dispatch", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		userID := uuid.New()

		task, err := f.svc.CreateBatchTask(context.Background(), userID, twoFileInput())
		require.NoError(t, err)
		_, err = f.svc.GetTaskProgress(context.Background(), task.ID, userID)
		require.NoError(t, err)

		require.NoError(t, f.svc.DeleteTask(context.Background(), task.ID, userID))

		assert.Equal(t, []uuid.UUID{task.ID}, f.canceler.cancelled)
		assert.Equal(t, 0, f.files.count())

		cached, err := f.cache.Get(context.Background(), task.ID)
		require.NoError(t, err)
		assert.Nil(t, cached)

		_, err = f.svc.GetTaskDetail(context.Background(), task.ID, userID)
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})

	t.Run("foreign task reads as missing", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		userID := uuid.New()

		task, err := f.svc.CreateBatchTask(context.Background(), userID, twoFileInput())
		require.NoError(t, err)

		err = f.svc.DeleteTask(context.Background(), task.ID, uuid.New())
		assert.ErrorIs(t, err, ErrTaskNotFound)

		// Task untouched
		_, err = f.svc.GetTaskDetail(context.Background(), task.ID, userID)
		assert.NoError(t, err)
	})
}

func TestListTasks(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := f.svc.CreateBatchTask(context.Background(), userID, twoFileInput())
		require.NoError(t, err)
	}

	t.Run("lists own tasks", func(t *testing.T) {
		page, err := f.svc.ListTasks(context.Background(), userID, ListInput{})
		require.NoError(t, err)
		assert.Equal(t, int64(3), page.Total)
		assert.Len(t, page.Tasks, 3)
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, defaultPageSize, page.Size)
	})

	t.Run("clamps page and size", func(t *testing.T) {
		page, err := f.svc.ListTasks(context.Background(), userID, ListInput{Page: -5, Size: 100000})
		require.NoError(t, err)
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, maxPageSize, page.Size)
	})

	t.Run("filters by status", func(t *testing.T) {
		page, err := f.svc.ListTasks(context.Background(), userID, ListInput{Status: "completed"})
		require.NoError(t, err)
		assert.Equal(t, int64(0), page.Total)
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		_, err := f.svc.ListTasks(context.Background(), userID, ListInput{Status: "done"})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("other users see nothing", func(t *testing.T) {
		page, err := f.svc.ListTasks(context.Background(), uuid.New(), ListInput{})
		require.NoError(t, err)
		assert.Equal(t, int64(0), page.Total)
	})
}

func TestGetUserStats(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	userID := uuid.New()

	// Two pending (fresh), then force one to completed and one to processing.
	var tasks []*domain.BatchTask
	for i := 0; i < 4; i++ {
		task, err := f.svc.CreateBatchTask(context.Background(), userID, twoFileInput())
		require.NoError(t, err)
		tasks = append(tasks, task)
	}
	f.store.tasks[tasks[0].ID].Status = domain.TaskStatusCompleted
	f.store.tasks[tasks[1].ID].Status = domain.TaskStatusProcessing

	stats, err := f.svc.GetUserStats(context.Background(), userID)
	require.NoError(t, err)

	assert.Equal(t, int64(4), stats.TotalTasks)
	assert.Equal(t, int64(1), stats.CompletedTasks)
	assert.Equal(t, int64(1), stats.ProcessingTasks)
	// Derived, never read from storage
	assert.Equal(t, int64(2), stats.PendingTasks)
}
