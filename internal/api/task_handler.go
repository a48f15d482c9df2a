package api

import (
	"log/slog"
	"net/http"

	"github.com/vkwatch/vkwatch-api/internal/api/shared"
	"github.com/vkwatch/vkwatch-api/internal/platform/logger"
	"github.com/vkwatch/vkwatch-api/internal/service"
)

// TaskHandler handles task-related HTTP requests
type TaskHandler struct {
	taskService service.TaskService
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(taskService service.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

// CreateTask handles POST /api/tasks requests
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	task, err := h.taskService.Enqueue(r.Context(), req.Type, req.Payload)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	logger.FromContextOrDefault(r.Context(), slog.Default()).
		Debug("task accepted", "task_id", task.ID, "task_type", task.Type)

	// 202 Accepted: the task runs asynchronously
	shared.RespondWithJSON(w, r, http.StatusAccepted, CreateTaskResponse{
		ID:     task.ID,
		Status: task.Status,
	})
}

// GetTask handles GET /api/tasks/{id} requests
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "Invalid task ID")
		return
	}

	task, err := h.taskService.Get(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// ListTasks handles GET /api/tasks requests. It accepts the optional query
// parameters type, status, page and limit.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	page, err := getQueryInt(r, "page")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	limit, err := getQueryInt(r, "limit")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	q := r.URL.Query()
	result, err := h.taskService.List(r.Context(), service.ListTasksParams{
		Type:   q.Get("type"),
		Status: q.Get("status"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	items := make([]TaskResponse, 0, len(result.Items))
	for _, t := range result.Items {
		items = append(items, taskToResponse(t))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, TaskListResponse{
		Items: items,
		Total: result.Total,
		Page:  result.Page,
		Limit: result.Limit,
	})
}

// GetStats handles GET /api/tasks/stats requests
func (h *TaskHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.taskService.Stats(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, stats)
}

// CancelTask handles POST /api/tasks/{id}/cancel requests
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "Invalid task ID")
		return
	}

	task, err := h.taskService.Cancel(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}
