package api

import (
	"time"

	"github.com/tovell/argus-api/internal/domain"
	"github.com/tovell/argus-api/internal/service"
	"github.com/tovell/argus-api/internal/store"
)

// TaskResponse represents the response data for a batch task
type TaskResponse struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	TotalCount     int        `json:"total_count"`
	ProcessedCount int        `json:"processed_count"`
	SuccessCount   int        `json:"success_count"`
	FailedCount    int        `json:"failed_count"`
	Progress       int        `json:"progress"`
	Status         string     `json:"status"`
	TotalSize      int64      `json:"total_size"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}

// RecognitionResultResponse is the recognition payload of a successful item
type RecognitionResultResponse struct {
	Label      string  `json:"label"`
	Category   string  `json:"category,omitempty"`
	Confidence float64 `json:"confidence"`
}

// ItemResponse represents the response data for a batch item
type ItemResponse struct {
	ID           string                     `json:"id"`
	FileName     string                     `json:"file_name"`
	FileSize     int64                      `json:"file_size"`
	Status       string                     `json:"status"`
	Result       *RecognitionResultResponse `json:"result,omitempty"`
	ErrorMessage string                     `json:"error_message,omitempty"`
	CreatedAt    time.Time                  `json:"created_at"`
}

// TaskDetailResponse is a task together with all of its items
type TaskDetailResponse struct {
	Task  TaskResponse   `json:"task"`
	Items []ItemResponse `json:"items"`
}

// TaskListResponse is one page of a user's tasks
type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Size  int            `json:"size"`
}

// ProgressResponse is the live progress snapshot of a task
type ProgressResponse struct {
	TaskID         string `json:"task_id"`
	Status         string `json:"status"`
	TotalCount     int    `json:"total_count"`
	ProcessedCount int    `json:"processed_count"`
	SuccessCount   int    `json:"success_count"`
	FailedCount    int    `json:"failed_count"`
	Progress       int    `json:"progress"`
}

// StatsResponse summarizes a user's tasks by status
type StatsResponse struct {
	TotalTasks      int64 `json:"total_tasks"`
	CompletedTasks  int64 `json:"completed_tasks"`
	ProcessingTasks int64 `json:"processing_tasks"`
	PendingTasks    int64 `json:"pending_tasks"`
}

// taskToResponse converts a domain.BatchTask to a TaskResponse
func taskToResponse(task *domain.BatchTask) TaskResponse {
	return TaskResponse{
		ID:             task.ID.String(),
		Name:           task.Name,
		Description:    task.Description,
		TotalCount:     task.TotalCount,
		ProcessedCount: task.ProcessedCount,
		SuccessCount:   task.SuccessCount,
		FailedCount:    task.FailedCount,
		Progress:       task.Progress,
		Status:         string(task.Status),
		TotalSize:      task.TotalSize,
		CreatedAt:      task.CreatedAt,
		StartedAt:      task.StartedAt,
		EndedAt:        task.EndedAt,
	}
}

// itemToResponse converts a domain.BatchItem to an ItemResponse
func itemToResponse(item *domain.BatchItem) ItemResponse {
	resp := ItemResponse{
		ID:           item.ID.String(),
		FileName:     item.FileName,
		FileSize:     item.FileSize,
		Status:       string(item.Status),
		ErrorMessage: item.ErrorMessage,
		CreatedAt:    item.CreatedAt,
	}
	if item.Result != nil {
		resp.Result = &RecognitionResultResponse{
			Label:      item.Result.Label,
			Category:   item.Result.Category,
			Confidence: item.Result.Confidence,
		}
	}
	return resp
}

// detailToResponse converts a service.TaskDetail to a TaskDetailResponse
func detailToResponse(detail *service.TaskDetail) TaskDetailResponse {
	items := make([]ItemResponse, 0, len(detail.Items))
	for _, item := range detail.Items {
		items = append(items, itemToResponse(item))
	}
	return TaskDetailResponse{
		Task:  taskToResponse(detail.Task),
		Items: items,
	}
}

// progressToResponse converts a store.TaskProgress to a ProgressResponse
func progressToResponse(progress *store.TaskProgress) ProgressResponse {
	return ProgressResponse{
		TaskID:         progress.TaskID.String(),
		Status:         string(progress.Status),
		TotalCount:     progress.TotalCount,
		ProcessedCount: progress.ProcessedCount,
		SuccessCount:   progress.SuccessCount,
		FailedCount:    progress.FailedCount,
		Progress:       progress.Progress,
	}
}
