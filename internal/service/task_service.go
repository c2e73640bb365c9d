package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tovell/argus-api/internal/domain"
	"github.com/tovell/argus-api/internal/events"
	"github.com/tovell/argus-api/internal/filestore"
	"github.com/tovell/argus-api/internal/store"
)

// Listing page bounds. Requests outside the bounds are clamped, not
// rejected.
const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// BatchFileInput is one uploaded image in a create request.
type BatchFileInput struct {
	FileName    string
	ContentType string
	Payload     []byte
}

// CreateBatchInput carries everything needed to create a batch task.
type CreateBatchInput struct {
	Name        string
	Description string
	Files       []BatchFileInput
}

// ListInput narrows and pages a task listing. Status is optional.
type ListInput struct {
	Status string
	Page   int
	Size   int
}

// TaskDetail is a task together with all of its items.
type TaskDetail struct {
	Task  *domain.BatchTask
	Items []*domain.BatchItem
}

// TaskPage is one page of a user's tasks.
type TaskPage struct {
	Tasks []*domain.BatchTask
	Total int64
	Page  int
	Size  int
}

// TaskCanceler stops background dispatch for a task. Satisfied by the
// dispatcher; narrow so the service never sees the rest of the engine.
type TaskCanceler interface {
	Cancel(taskID uuid.UUID)
}

// TaskService provides batch task operations.
type TaskService interface {
	// CreateBatchTask stores the uploaded images, persists the task with
	// all of its items atomically, and emits an event requesting background
	// processing. The returned task is in pending status.
	CreateBatchTask(ctx context.Context, userID uuid.UUID, input CreateBatchInput) (*domain.BatchTask, error)

	// GetTaskDetail retrieves a task with all of its items.
	GetTaskDetail(ctx context.Context, taskID, userID uuid.UUID) (*TaskDetail, error)

	// GetTaskProgress retrieves the task's progress snapshot, preferring
	// the cache over the database.
	GetTaskProgress(ctx context.Context, taskID, userID uuid.UUID) (*store.TaskProgress, error)

	// DeleteTask stops background dispatch for the task and removes it with
	// all of its items. Stored images and the cached snapshot are cleaned
	// up best-effort.
	DeleteTask(ctx context.Context, taskID, userID uuid.UUID) error

	// ListTasks returns one page of the user's tasks, optionally filtered
	// by status, newest first.
	ListTasks(ctx context.Context, userID uuid.UUID, input ListInput) (*TaskPage, error)

	// GetUserStats summarizes the user's tasks by status.
	GetUserStats(ctx context.Context, userID uuid.UUID) (*domain.UserTaskStats, error)
}

// taskServiceImpl implements the TaskService interface
type taskServiceImpl struct {
	taskStore    store.BatchTaskStore
	files        filestore.FileStore
	cache        store.ProgressCache
	eventEmitter events.EventEmitter
	canceler     TaskCanceler
	logger       *slog.Logger
}

// NewTaskService creates a new TaskService.
// cache and canceler may be nil; the matching behaviors are then skipped.
// It returns an error if any of the other dependencies are nil.
func NewTaskService(
	taskStore store.BatchTaskStore,
	files filestore.FileStore,
	cache store.ProgressCache,
	eventEmitter events.EventEmitter,
	canceler TaskCanceler,
	logger *slog.Logger,
) (TaskService, error) {
	if taskStore == nil {
		return nil, &TaskServiceError{
			Operation: "create_service",
			Message:   "taskStore cannot be nil",
		}
	}
	if files == nil {
		return nil, &TaskServiceError{
			Operation: "create_service",
			Message:   "files cannot be nil",
		}
	}
	if eventEmitter == nil {
		return nil, &TaskServiceError{
			Operation: "create_service",
			Message:   "eventEmitter cannot be nil",
		}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &taskServiceImpl{
		taskStore:    taskStore,
		files:        files,
		cache:        cache,
		eventEmitter: eventEmitter,
		canceler:     canceler,
		logger:       logger.With("component", "task_service"),
	}, nil
}

// CreateBatchTask creates a task from the uploaded files and emits an event
// for background processing.
func (s *taskServiceImpl) CreateBatchTask(
	ctx context.Context,
	userID uuid.UUID,
	input CreateBatchInput,
) (*domain.BatchTask, error) {
	// 1. Reject empty batches before any side effect
	if len(input.Files) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrValidation, domain.ErrEmptyItemSet)
	}
	for _, f := range input.Files {
		if f.FileName == "" {
			return nil, fmt.Errorf("%w: %v", ErrValidation, domain.ErrEmptyItemFileName)
		}
		if len(f.Payload) == 0 {
			return nil, fmt.Errorf("%w: file %q has no content", ErrValidation, f.FileName)
		}
	}

	var totalSize int64
	for _, f := range input.Files {
		totalSize += int64(len(f.Payload))
	}

	// 2. Build the task and its items
	task, err := domain.NewBatchTask(userID, input.Name, input.Description, len(input.Files), totalSize)
	if err != nil {
		s.logger.Error("failed to create task object",
			"error", err,
			"user_id", userID)
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	items := make([]*domain.BatchItem, 0, len(input.Files))
	for _, f := range input.Files {
		item, err := domain.NewBatchItem(task.ID, f.FileName, int64(len(f.Payload)), "")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		items = append(items, item)
	}

	// 3. Store the raw images under the task's prefix
	for i, f := range input.Files {
		key := storageKey(task.ID, items[i].ID, f.FileName)
		handle, err := s.files.Put(ctx, key, f.Payload, f.ContentType)
		if err != nil {
			s.logger.Error("failed to store uploaded image",
				"error", err,
				"task_id", task.ID,
				"file_name", f.FileName)
			// Drop whatever was already stored for this task
			s.cleanupFiles(ctx, task.ID)
			return nil, NewTaskServiceError("create_task", "failed to store uploaded image", err)
		}
		items[i].StorageHandle = handle
	}

	// 4. Persist the task with all of its items atomically
	if err := s.taskStore.CreateWithItems(ctx, task, items); err != nil {
		s.logger.Error("failed to save task",
			"error", err,
			"task_id", task.ID,
			"user_id", userID)
		s.cleanupFiles(ctx, task.ID)
		return nil, NewTaskServiceError("create_task", "failed to save task", err)
	}

	s.logger.Info("batch task created",
		"task_id", task.ID,
		"user_id", userID,
		"total_count", task.TotalCount,
		"total_size", task.TotalSize)

	// 5. Emit the processing request event. The task is already durable, so
	// a failed emit is surfaced but recovery will still pick the task up.
	event, err := events.NewBatchRequestEvent(events.EventTypeBatchRecognition, events.BatchRequestPayload{
		TaskID: task.ID,
		UserID: userID,
	})
	if err != nil {
		return nil, NewTaskServiceError("create_task", "failed to create event", err)
	}

	if err := s.eventEmitter.EmitEvent(ctx, event); err != nil {
		s.logger.Error("failed to emit batch recognition event",
			"error", err,
			"task_id", task.ID,
			"event_id", event.ID)
		return nil, NewTaskServiceError("create_task", "failed to emit event", err)
	}

	s.logger.Info("batch recognition event emitted",
		"task_id", task.ID,
		"event_id", event.ID)

	return task, nil
}

// GetTaskDetail retrieves a task with all of its items.
func (s *taskServiceImpl) GetTaskDetail(ctx context.Context, taskID, userID uuid.UUID) (*TaskDetail, error) {
	task, err := s.taskStore.GetByID(ctx, taskID, userID)
	if err != nil {
		return nil, NewTaskServiceError("get_task_detail", "failed to retrieve task", err)
	}

	items, err := s.taskStore.GetItems(ctx, taskID)
	if err != nil {
		return nil, NewTaskServiceError("get_task_detail", "failed to retrieve items", err)
	}

	return &TaskDetail{Task: task, Items: items}, nil
}

// GetTaskProgress retrieves the task's progress snapshot. Cache hits skip
// the database entirely; ownership is checked against the snapshot so a
// foreign task stays as invisible as a missing one.
func (s *taskServiceImpl) GetTaskProgress(ctx context.Context, taskID, userID uuid.UUID) (*store.TaskProgress, error) {
	if s.cache != nil {
		snapshot, err := s.cache.Get(ctx, taskID)
		if err != nil {
			s.logger.Warn("progress cache read failed, falling back to store",
				"error", err,
				"task_id", taskID)
		} else if snapshot != nil {
			if snapshot.UserID != userID {
				return nil, ErrTaskNotFound
			}
			return snapshot, nil
		}
	}

	task, err := s.taskStore.GetByID(ctx, taskID, userID)
	if err != nil {
		return nil, NewTaskServiceError("get_task_progress", "failed to retrieve task", err)
	}

	snapshot := store.ProgressOf(task)
	if s.cache != nil {
		if err := s.cache.Set(ctx, snapshot); err != nil {
			s.logger.Warn("failed to populate progress cache",
				"error", err,
				"task_id", taskID)
		}
	}

	return snapshot, nil
}

// DeleteTask removes a task and everything attached to it. The store delete
// is the authoritative step; file and cache cleanup are best-effort since
// orphaned objects only cost storage, never correctness.
func (s *taskServiceImpl) DeleteTask(ctx context.Context, taskID, userID uuid.UUID) error {
	// Stop handing the task's items to workers. In-flight items finish and
	// their late outcomes are absorbed by the aggregator.
	if s.canceler != nil {
		s.canceler.Cancel(taskID)
	}

	if err := s.taskStore.Delete(ctx, taskID, userID); err != nil {
		return NewTaskServiceError("delete_task", "failed to delete task", err)
	}

	s.cleanupFiles(ctx, taskID)

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, taskID); err != nil {
			s.logger.Warn("failed to invalidate progress cache",
				"error", err,
				"task_id", taskID)
		}
	}

	s.logger.Info("batch task deleted",
		"task_id", taskID,
		"user_id", userID)
	return nil
}

// ListTasks returns one page of the user's tasks, newest first.
func (s *taskServiceImpl) ListTasks(ctx context.Context, userID uuid.UUID, input ListInput) (*TaskPage, error) {
	filter := store.ListFilter{
		Page: input.Page,
		Size: input.Size,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Size <= 0 {
		filter.Size = defaultPageSize
	}
	if filter.Size > maxPageSize {
		filter.Size = maxPageSize
	}

	if input.Status != "" {
		status, err := domain.ParseTaskStatus(input.Status)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		filter.Status = &status
	}

	tasks, total, err := s.taskStore.ListByUser(ctx, userID, filter)
	if err != nil {
		return nil, NewTaskServiceError("list_tasks", "failed to list tasks", err)
	}

	return &TaskPage{
		Tasks: tasks,
		Total: total,
		Page:  filter.Page,
		Size:  filter.Size,
	}, nil
}

// GetUserStats summarizes the user's tasks by status. The pending figure is
// always derived from the other counters, never stored.
func (s *taskServiceImpl) GetUserStats(ctx context.Context, userID uuid.UUID) (*domain.UserTaskStats, error) {
	counts, err := s.taskStore.CountByStatus(ctx, userID)
	if err != nil {
		return nil, NewTaskServiceError("get_user_stats", "failed to count tasks", err)
	}

	var total int64
	for _, count := range counts {
		total += count
	}

	stats := &domain.UserTaskStats{
		TotalTasks:      total,
		CompletedTasks:  counts[domain.TaskStatusCompleted],
		ProcessingTasks: counts[domain.TaskStatusProcessing],
	}
	stats.PendingTasks = stats.TotalTasks - stats.CompletedTasks - stats.ProcessingTasks

	return stats, nil
}

// cleanupFiles removes every stored object under the task's prefix.
func (s *taskServiceImpl) cleanupFiles(ctx context.Context, taskID uuid.UUID) {
	if err := s.files.RemoveAll(ctx, taskPrefix(taskID)); err != nil {
		s.logger.Warn("failed to remove stored images",
			"error", err,
			"task_id", taskID)
	}
}

// taskPrefix is the storage prefix holding every object of a task.
func taskPrefix(taskID uuid.UUID) string {
	return fmt.Sprintf("tasks/%s/", taskID)
}

// storageKey builds the object key for one uploaded file.
func storageKey(taskID, itemID uuid.UUID, fileName string) string {
	return fmt.Sprintf("%s%s-%s", taskPrefix(taskID), itemID, fileName)
}
