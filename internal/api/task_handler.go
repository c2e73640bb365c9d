package api

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tovell/argus-api/internal/api/shared"
	"github.com/tovell/argus-api/internal/service"
)

// Upload limits for create requests.
const (
	// maxUploadBytes caps the total size of one create request.
	maxUploadBytes = 100 << 20 // 100 MiB

	// multipartMemory is how much of a parsed form is held in memory
	// before spilling to disk.
	multipartMemory = 10 << 20 // 10 MiB
)

// TaskHandler handles batch task HTTP requests
type TaskHandler struct {
	taskService service.TaskService
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(taskService service.TaskService) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
	}
}

// CreateTask handles POST /api/tasks requests. The request is a multipart
// form with optional name and description fields and one or more files.
// Responds 202 Accepted since processing happens asynchronously.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid multipart request")
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			slog.Debug("failed to clean up multipart form", "error", err)
		}
	}()

	input := service.CreateBatchInput{
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
	}

	for _, header := range r.MultipartForm.File["files"] {
		file, err := header.Open()
		if err != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest,
				"Failed to read uploaded file", err)
			return
		}

		payload, err := io.ReadAll(file)
		closeErr := file.Close()
		if err != nil || closeErr != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest,
				"Failed to read uploaded file", err)
			return
		}

		input.Files = append(input.Files, service.BatchFileInput{
			FileName:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Payload:     payload,
		})
	}

	task, err := h.taskService.CreateBatchTask(r.Context(), userID, input)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, taskToResponse(task))
}

// GetTaskDetail handles GET /api/tasks/{id} requests
func (h *TaskHandler) GetTaskDetail(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	taskID, ok := h.taskID(w, r)
	if !ok {
		return
	}

	detail, err := h.taskService.GetTaskDetail(r.Context(), taskID, userID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, detailToResponse(detail))
}

// GetTaskProgress handles GET /api/tasks/{id}/progress requests
func (h *TaskHandler) GetTaskProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	taskID, ok := h.taskID(w, r)
	if !ok {
		return
	}

	progress, err := h.taskService.GetTaskProgress(r.Context(), taskID, userID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, progressToResponse(progress))
}

// DeleteTask handles DELETE /api/tasks/{id} requests
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	taskID, ok := h.taskID(w, r)
	if !ok {
		return
	}

	if err := h.taskService.DeleteTask(r.Context(), taskID, userID); err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListTasks handles GET /api/tasks requests. Supports page, size and status
// query parameters.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	input := service.ListInput{
		Status: r.URL.Query().Get("status"),
	}
	if v := r.URL.Query().Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid page parameter")
			return
		}
		input.Page = page
	}
	if v := r.URL.Query().Get("size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid size parameter")
			return
		}
		input.Size = size
	}

	page, err := h.taskService.ListTasks(r.Context(), userID, input)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	tasks := make([]TaskResponse, 0, len(page.Tasks))
	for _, task := range page.Tasks {
		tasks = append(tasks, taskToResponse(task))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TaskListResponse{
		Tasks: tasks,
		Total: page.Total,
		Page:  page.Page,
		Size:  page.Size,
	})
}

// GetStats handles GET /api/stats requests
func (h *TaskHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	stats, err := h.taskService.GetUserStats(r.Context(), userID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, StatsResponse{
		TotalTasks:      stats.TotalTasks,
		CompletedTasks:  stats.CompletedTasks,
		ProcessingTasks: stats.ProcessingTasks,
		PendingTasks:    stats.PendingTasks,
	})
}

// userID extracts the authenticated user ID set by the auth middleware.
func (h *TaskHandler) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := r.Context().Value(shared.UserIDContextKey).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return uuid.Nil, false
	}
	return userID, true
}

// taskID parses the {id} route parameter.
func (h *TaskHandler) taskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	taskID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return uuid.Nil, false
	}
	return taskID, true
}
