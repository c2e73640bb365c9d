package service

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tovell/argus-api/internal/domain"
	"github.com/tovell/argus-api/internal/events"
	"github.com/tovell/argus-api/internal/store"
)

// mockBatchTaskStore is a hand-rolled in-memory store.BatchTaskStore with
// per-method error injection.
type mockBatchTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.BatchTask
	items map[uuid.UUID][]*domain.BatchItem

	createErr error
	listErr   error
	countErr  error
	deleteErr error
}

func newMockBatchTaskStore() *mockBatchTaskStore {
	return &mockBatchTaskStore{
		tasks: make(map[uuid.UUID]*domain.BatchTask),
		items: make(map[uuid.UUID][]*domain.BatchItem),
	}
}

func (m *mockBatchTaskStore) CreateWithItems(ctx context.Context, task *domain.BatchTask, items []*domain.BatchItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.tasks[task.ID] = task
	m.items[task.ID] = items
	return nil
}

func (m *mockBatchTaskStore) GetByID(ctx context.Context, taskID, userID uuid.UUID) (*domain.BatchTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok || task.UserID != userID {
		return nil, store.ErrTaskNotFound
	}
	return task, nil
}

func (m *mockBatchTaskStore) GetItems(ctx context.Context, taskID uuid.UUID) ([]*domain.BatchItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[taskID], nil
}

func (m *mockBatchTaskStore) GetPendingItems(ctx context.Context, taskID uuid.UUID) ([]*domain.BatchItem, error) {
	return m.GetItems(ctx, taskID)
}

func (m *mockBatchTaskStore) ListByUser(ctx context.Context, userID uuid.UUID, filter store.ListFilter) ([]*domain.BatchTask, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var matching []*domain.BatchTask
	for _, task := range m.tasks {
		if task.UserID != userID {
			continue
		}
		if filter.Status != nil && task.Status != *filter.Status {
			continue
		}
		matching = append(matching, task)
	}
	return matching, int64(len(matching)), nil
}

func (m *mockBatchTaskStore) CountByStatus(ctx context.Context, userID uuid.UUID) (map[domain.TaskStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return nil, m.countErr
	}
	counts := make(map[domain.TaskStatus]int64)
	for _, task := range m.tasks {
		if task.UserID == userID {
			counts[task.Status]++
		}
	}
	return counts, nil
}

func (m *mockBatchTaskStore) Delete(ctx context.Context, taskID, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	task, ok := m.tasks[taskID]
	if !ok || task.UserID != userID {
		return store.ErrTaskNotFound
	}
	delete(m.tasks, taskID)
	delete(m.items, taskID)
	return nil
}

func (m *mockBatchTaskStore) MarkItemProcessing(ctx context.Context, itemID uuid.UUID) error {
	return nil
}

func (m *mockBatchTaskStore) CompleteItem(ctx context.Context, taskID, itemID uuid.UUID, outcome domain.ItemOutcome) (*domain.BatchTask, error) {
	return nil, nil
}

func (m *mockBatchTaskStore) ListUnfinishedTaskIDs(ctx context.Context) ([]uuid.UUID, error) {
	return nil, nil
}

func (m *mockBatchTaskStore) WithTx(tx *sql.Tx) store.BatchTaskStore {
	return m
}

// mockFileStore records puts and removals in memory.
type mockFileStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	// failAfter makes Put fail once this many objects are stored.
	failAfter int
}

func newMockFileStore() *mockFileStore {
	return &mockFileStore{objects: make(map[string][]byte), failAfter: -1}
}

func (m *mockFileStore) Put(ctx context.Context, key string, payload []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return "", m.putErr
	}
	if m.failAfter >= 0 && len(m.objects) >= m.failAfter {
		return "", context.DeadlineExceeded
	}
	m.objects[key] = payload
	return key, nil
}

func (m *mockFileStore) Get(ctx context.Context, handle string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[handle], nil
}

func (m *mockFileStore) Remove(ctx context.Context, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, handle)
	return nil
}

func (m *mockFileStore) RemoveAll(ctx context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			delete(m.objects, key)
		}
	}
	return nil
}

func (m *mockFileStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// mockEventEmitter records emitted events.
type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*events.BatchRequestEvent
	emitErr error
}

func (m *mockEventEmitter) EmitEvent(ctx context.Context, event *events.BatchRequestEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.emitErr != nil {
		return m.emitErr
	}
	m.events = append(m.events, event)
	return nil
}

func (m *mockEventEmitter) emitted() []*events.BatchRequestEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events
}

// mockCanceler records cancel calls.
type mockCanceler struct {
	mu        sync.Mutex
	cancelled []uuid.UUID
}

func (m *mockCanceler) Cancel(taskID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, taskID)
}

// mockProgressCache is an in-memory store.ProgressCache.
type mockProgressCache struct {
	mu        sync.Mutex
	snapshots map[uuid.UUID]*store.TaskProgress
	getErr    error
}

func newMockProgressCache() *mockProgressCache {
	return &mockProgressCache{snapshots: make(map[uuid.UUID]*store.TaskProgress)}
}

func (m *mockProgressCache) Get(ctx context.Context, taskID uuid.UUID) (*store.TaskProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.snapshots[taskID], nil
}

func (m *mockProgressCache) Set(ctx context.Context, progress *store.TaskProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[progress.TaskID] = progress
	return nil
}

func (m *mockProgressCache) Invalidate(ctx context.Context, taskID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, taskID)
	return nil
}
