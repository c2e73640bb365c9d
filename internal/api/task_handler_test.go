package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tovell/argus-api/internal/api/shared"
	"github.com/tovell/argus-api/internal/domain"
	"github.com/tovell/argus-api/internal/service"
	"github.com/tovell/argus-api/internal/store"
)

// mockTaskService scripts TaskService behavior per test.
type mockTaskService struct {
	createFn   func(ctx context.Context, userID uuid.UUID, input service.CreateBatchInput) (*domain.BatchTask, error)
	detailFn   func(ctx context.Context, taskID, userID uuid.UUID) (*service.TaskDetail, error)
	progressFn func(ctx context.Context, taskID, userID uuid.UUID) (*store.TaskProgress, error)
	deleteFn   func(ctx context.Context, taskID, userID uuid.UUID) error
	listFn     func(ctx context.Context, userID uuid.UUID, input service.ListInput) (*service.TaskPage, error)
	statsFn    func(ctx context.Context, userID uuid.UUID) (*domain.UserTaskStats, error)
}

func (m *mockTaskService) CreateBatchTask(ctx context.Context, userID uuid.UUID, input service.CreateBatchInput) (*domain.BatchTask, error) {
	return m.createFn(ctx, userID, input)
}

func (m *mockTaskService) GetTaskDetail(ctx context.Context, taskID, userID uuid.UUID) (*service.TaskDetail, error) {
	return m.detailFn(ctx, taskID, userID)
}

func (m *mockTaskService) GetTaskProgress(ctx context.Context, taskID, userID uuid.UUID) (*store.TaskProgress, error) {
	return m.progressFn(ctx, taskID, userID)
}

func (m *mockTaskService) DeleteTask(ctx context.Context, taskID, userID uuid.UUID) error {
	return m.deleteFn(ctx, taskID, userID)
}

func (m *mockTaskService) ListTasks(ctx context.Context, userID uuid.UUID, input service.ListInput) (*service.TaskPage, error) {
	return m.listFn(ctx, userID, input)
}

func (m *mockTaskService) GetUserStats(ctx context.Context, userID uuid.UUID) (*domain.UserTaskStats, error) {
	return m.statsFn(ctx, userID)
}

// newTestRouter wires the handler into a chi router with the user ID
// injected into the context, standing in for the auth middleware.
func newTestRouter(svc service.TaskService, userID uuid.UUID) http.Handler {
	handler := NewTaskHandler(svc)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := context.WithValue(req.Context(), shared.UserIDContextKey, userID)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/api", func(r chi.Router) {
		r.Post("/tasks", handler.CreateTask)
		r.Get("/tasks", handler.ListTasks)
		r.Get("/tasks/{id}", handler.GetTaskDetail)
		r.Get("/tasks/{id}/progress", handler.GetTaskProgress)
		r.Delete("/tasks/{id}", handler.DeleteTask)
		r.Get("/stats", handler.GetStats)
	})
	return r
}

func sampleTask(userID uuid.UUID) *domain.BatchTask {
	now := time.Now().UTC()
	return &domain.BatchTask{
		ID:         uuid.New(),
		UserID:     userID,
		Name:       "batch-1",
		TotalCount: 2,
		Status:     domain.TaskStatusPending,
		CreatedAt:  now,
		StartedAt:  now,
		UpdatedAt:  now,
	}
}

// multipartBody builds a multipart request body with the given files.
func multipartBody(t *testing.T, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("name", "batch-1"))
	for name, payload := range files {
		part, err := writer.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write(payload)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestCreateTaskHandler(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	t.Run("returns 202 with task body", func(t *testing.T) {
		t.Parallel()

		var gotInput service.CreateBatchInput
		svc := &mockTaskService{
			createFn: func(ctx context.Context, uid uuid.UUID, input service.CreateBatchInput) (*domain.BatchTask, error) {
				assert.Equal(t, userID, uid)
				gotInput = input
				return sampleTask(uid), nil
			},
		}
		router := newTestRouter(svc, userID)

		body, contentType := multipartBody(t, map[string][]byte{
			"cat.jpg": []byte("cat-bytes"),
			"dog.png": []byte("dog-bytes"),
		})
		req := httptest.NewRequest(http.MethodPost, "/api/tasks", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "batch-1", gotInput.Name)
		assert.Len(t, gotInput.Files, 2)

		var resp TaskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "pending", resp.Status)
		assert.Equal(t, 2, resp.TotalCount)
	})

	t.Run("maps validation errors to 400", func(t *testing.T) {
		t.Parallel()

		svc := &mockTaskService{
			createFn: func(ctx context.Context, uid uuid.UUID, input service.CreateBatchInput) (*domain.BatchTask, error) {
				return nil, fmt.Errorf("%w: empty batch", service.ErrValidation)
			},
		}
		router := newTestRouter(svc, userID)

		body, contentType := multipartBody(t, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/tasks", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects non-multipart body", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(&mockTaskService{}, userID)

		req := httptest.NewRequest(http.MethodPost, "/api/tasks", bytes.NewBufferString(`{"name":"x"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects unauthenticated requests", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(&mockTaskService{}, uuid.Nil)

		body, contentType := multipartBody(t, map[string][]byte{"a.jpg": []byte("x")})
		req := httptest.NewRequest(http.MethodPost, "/api/tasks", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestGetTaskDetailHandler(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	task := sampleTask(userID)

	svc := &mockTaskService{
		detailFn: func(ctx context.Context, taskID, uid uuid.UUID) (*service.TaskDetail, error) {
			if taskID != task.ID {
				return nil, service.ErrTaskNotFound
			}
			return &service.TaskDetail{
				Task: task,
				Items: []*domain.BatchItem{
					{
						ID:       uuid.New(),
						TaskID:   task.ID,
						FileName: "cat.jpg",
						Status:   domain.ItemStatusSuccess,
						Result:   &domain.RecognitionResult{Label: "cat", Confidence: 0.9},
					},
					{
						ID:           uuid.New(),
						TaskID:       task.ID,
						FileName:     "dog.png",
						Status:       domain.ItemStatusFailed,
						ErrorMessage: "processing timed out",
					},
				},
			}, nil
		},
	}
	router := newTestRouter(svc, userID)

	t.Run("returns task with items", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/api/tasks/"+task.ID.String(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp TaskDetailResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, task.ID.String(), resp.Task.ID)
		require.Len(t, resp.Items, 2)
		require.NotNil(t, resp.Items[0].Result)
		assert.Equal(t, "cat", resp.Items[0].Result.Label)
		assert.Nil(t, resp.Items[1].Result)
		assert.Equal(t, "processing timed out", resp.Items[1].ErrorMessage)
	})

	t.Run("unknown task returns 404", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/api/tasks/"+uuid.NewString(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed task ID returns 400", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/api/tasks/not-a-uuid", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetTaskProgressHandler(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	taskID := uuid.New()

	svc := &mockTaskService{
		progressFn: func(ctx context.Context, tid, uid uuid.UUID) (*store.TaskProgress, error) {
			return &store.TaskProgress{
				TaskID:         tid,
				UserID:         uid,
				Status:         domain.TaskStatusProcessing,
				TotalCount:     4,
				ProcessedCount: 3,
				SuccessCount:   2,
				FailedCount:    1,
				Progress:       75,
			}, nil
		},
	}
	router := newTestRouter(svc, userID)

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/"+taskID.String()+"/progress", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ProgressResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 75, resp.Progress)
	assert.Equal(t, "processing", resp.Status)
	assert.Equal(t, 3, resp.ProcessedCount)
}

func TestDeleteTaskHandler(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	taskID := uuid.New()

	t.Run("returns 204 on success", func(t *testing.T) {
		t.Parallel()

		svc := &mockTaskService{
			deleteFn: func(ctx context.Context, tid, uid uuid.UUID) error {
				assert.Equal(t, taskID, tid)
				return nil
			},
		}
		router := newTestRouter(svc, userID)

		req := httptest.NewRequest(http.MethodDelete, "/api/tasks/"+taskID.String(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("missing task returns 404", func(t *testing.T) {
		t.Parallel()

		svc := &mockTaskService{
			deleteFn: func(ctx context.Context, tid, uid uuid.UUID) error {
				return service.ErrTaskNotFound
			},
		}
		router := newTestRouter(svc, userID)

		req := httptest.NewRequest(http.MethodDelete, "/api/tasks/"+taskID.String(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListTasksHandler(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	t.Run("passes query parameters through", func(t *testing.T) {
		t.Parallel()

		var gotInput service.ListInput
		svc := &mockTaskService{
			listFn: func(ctx context.Context, uid uuid.UUID, input service.ListInput) (*service.TaskPage, error) {
				gotInput = input
				return &service.TaskPage{
					Tasks: []*domain.BatchTask{sampleTask(uid)},
					Total: 1,
					Page:  2,
					Size:  5,
				}, nil
			},
		}
		router := newTestRouter(svc, userID)

		req := httptest.NewRequest(http.MethodGet, "/api/tasks?page=2&size=5&status=completed", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 2, gotInput.Page)
		assert.Equal(t, 5, gotInput.Size)
		assert.Equal(t, "completed", gotInput.Status)

		var resp TaskListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, int64(1), resp.Total)
		assert.Len(t, resp.Tasks, 1)
	})

	t.Run("rejects non-numeric page", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(&mockTaskService{}, userID)

		req := httptest.NewRequest(http.MethodGet, "/api/tasks?page=two", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("maps unknown status to 400", func(t *testing.T) {
		t.Parallel()

		svc := &mockTaskService{
			listFn: func(ctx context.Context, uid uuid.UUID, input service.ListInput) (*service.TaskPage, error) {
				return nil, fmt.Errorf("%w: bad status", service.ErrValidation)
			},
		}
		router := newTestRouter(svc, userID)

		req := httptest.NewRequest(http.MethodGet, "/api/tasks?status=done", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetStatsHandler(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	svc := &mockTaskService{
		statsFn: func(ctx context.Context, uid uuid.UUID) (*domain.UserTaskStats, error) {
			return &domain.UserTaskStats{
				TotalTasks:      10,
				CompletedTasks:  6,
				ProcessingTasks: 1,
				PendingTasks:    3,
			}, nil
		},
	}
	router := newTestRouter(svc, userID)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.PendingTasks)
	assert.Equal(t, int64(10), resp.TotalTasks)
}

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"service not found", service.ErrTaskNotFound, http.StatusNotFound},
		{"store not found", store.ErrTaskNotFound, http.StatusNotFound},
		{"validation", service.ErrValidation, http.StatusBadRequest},
		{"invalid entity", store.ErrInvalidEntity, http.StatusBadRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, MapErrorToStatusCode(tt.err))
			// The safe message never echoes the raw error
			assert.NotContains(t, GetSafeErrorMessage(tt.err), "boom")
		})
	}
}
