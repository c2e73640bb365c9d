package task

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tovell/argus-api/internal/domain"
	"github.com/tovell/argus-api/internal/store"
)

// MockTaskStore implements the TaskStore interface for testing. It keeps
// tasks and items in memory behind a mutex and reproduces the real store's
// atomicity guarantees, including the terminal-item guard.
type MockTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.BatchTask
	items map[uuid.UUID]*domain.BatchItem

	// Error injection: when set, the matching method fails with this error.
	CompleteItemErr error
	// FailCompletions makes CompleteItem fail this many times before
	// succeeding, for retry tests.
	FailCompletions int
}

// NewMockTaskStore creates an empty MockTaskStore.
func NewMockTaskStore() *MockTaskStore {
	return &MockTaskStore{
		tasks: make(map[uuid.UUID]*domain.BatchTask),
		items: make(map[uuid.UUID]*domain.BatchItem),
	}
}

// AddTask seeds a task and its items.
func (m *MockTaskStore) AddTask(task *domain.BatchTask, items []*domain.BatchItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	taskCopy := *task
	m.tasks[task.ID] = &taskCopy
	for _, item := range items {
		itemCopy := *item
		m.items[item.ID] = &itemCopy
	}
}

// RemoveTask deletes a task and all of its items, mirroring store.Delete.
func (m *MockTaskStore) RemoveTask(taskID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, taskID)
	for id, item := range m.items {
		if item.TaskID == taskID {
			delete(m.items, id)
		}
	}
}

// Task returns a copy of the stored task.
func (m *MockTaskStore) Task(taskID uuid.UUID) *domain.BatchTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return nil
	}
	taskCopy := *task
	return &taskCopy
}

// Item returns a copy of the stored item.
func (m *MockTaskStore) Item(itemID uuid.UUID) *domain.BatchItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemID]
	if !ok {
		return nil
	}
	itemCopy := *item
	return &itemCopy
}

// GetPendingItems implements TaskStore.GetPendingItems
func (m *MockTaskStore) GetPendingItems(ctx context.Context, taskID uuid.UUID) ([]*domain.BatchItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pending []*domain.BatchItem
	for _, item := range m.items {
		if item.TaskID == taskID && !item.IsTerminal() {
			itemCopy := *item
			pending = append(pending, &itemCopy)
		}
	}
	return pending, nil
}

// MarkItemProcessing implements TaskStore.MarkItemProcessing
func (m *MockTaskStore) MarkItemProcessing(ctx context.Context, itemID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[itemID]
	if !ok {
		return store.ErrItemNotFound
	}
	if item.IsTerminal() {
		return store.ErrItemTerminal
	}
	item.Status = domain.ItemStatusProcessing
	return nil
}

// CompleteItem implements TaskStore.CompleteItem with the same atomicity
// semantics as the PostgreSQL store: the whole update happens under one
// lock, and terminal items are left untouched.
func (m *MockTaskStore) CompleteItem(
	ctx context.Context,
	taskID, itemID uuid.UUID,
	outcome domain.ItemOutcome,
) (*domain.BatchTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CompleteItemErr != nil {
		return nil, m.CompleteItemErr
	}
	if m.FailCompletions > 0 {
		m.FailCompletions--
		return nil, store.NewStoreError("batch_item", "update", "injected failure", store.ErrUpdateFailed)
	}

	item, ok := m.items[itemID]
	if !ok || item.TaskID != taskID {
		return nil, store.ErrTaskNotFound
	}
	if item.IsTerminal() {
		return nil, store.ErrItemTerminal
	}

	task, ok := m.tasks[taskID]
	if !ok {
		return nil, store.ErrTaskNotFound
	}

	item.Status = outcome.TerminalStatus()
	item.Result = outcome.Result
	item.ErrorMessage = outcome.ErrorMessage

	task.ProcessedCount++
	if outcome.Success {
		task.SuccessCount++
	} else {
		task.FailedCount++
	}
	task.Progress = task.ComputeProgress()
	if task.IsComplete() {
		task.Status = domain.TaskStatusCompleted
		if task.EndedAt == nil {
			now := time.Now().UTC()
			task.EndedAt = &now
		}
	} else {
		task.Status = domain.TaskStatusProcessing
	}

	taskCopy := *task
	return &taskCopy, nil
}

// ListUnfinishedTaskIDs implements TaskStore.ListUnfinishedTaskIDs
func (m *MockTaskStore) ListUnfinishedTaskIDs(ctx context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []uuid.UUID
	for id, task := range m.tasks {
		if task.Status != domain.TaskStatusCompleted {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Ensure MockTaskStore implements TaskStore
var _ TaskStore = (*MockTaskStore)(nil)
