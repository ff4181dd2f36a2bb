package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/recaphq/recap-api/internal/api/shared"
	"github.com/recaphq/recap-api/internal/service"
	"github.com/recaphq/recap-api/internal/task"
)

// QueueInspector reports where a task stands in the queue.
type QueueInspector interface {
	Inspect(ctx context.Context, id uuid.UUID) (*task.QueueInfo, error)
}

// CreateTaskRequest is the body of POST /api/tasks. Missing fields are
// reported by the summary service so every caller sees the same message.
type CreateTaskRequest struct {
	Username string `json:"username" validate:"max=100"`
	Style    string `json:"style" validate:"max=32"`
	Platform string `json:"platform" validate:"max=32"`
}

// TaskHandler serves summary task admission, status and queue endpoints.
type TaskHandler struct {
	tasks service.SummaryService
	queue QueueInspector
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(tasks service.SummaryService, queue QueueInspector) *TaskHandler {
	return &TaskHandler{tasks: tasks, queue: queue}
}

// CreateTask handles POST /api/tasks.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if !decodeBody(w, r, &req) {
		return
	}

	t, err := h.tasks.CreateTask(r.Context(), shared.UserID(r.Context()), service.CreateTaskRequest{
		Username: req.Username,
		Style:    req.Style,
		Platform: req.Platform,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, t)
}

// ListTasks handles GET /api/tasks.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	items, err := h.tasks.ListTasks(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list tasks")
		return
	}
	if items == nil {
		items = []service.TaskListItem{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, items)
}

// GetTask handles GET /api/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	view, err := h.tasks.GetStatus(r.Context(), userID, id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, view)
}

// QueueInfo handles GET /api/tasks/{id}/queue.
func (h *TaskHandler) QueueInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	h.writeQueueInfo(w, r, id)
}

// QueueInfoByQuery handles GET /api/tasks/queue-info?taskId=.
func (h *TaskHandler) QueueInfoByQuery(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUID(r.URL.Query().Get("taskId"), "taskId")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	h.writeQueueInfo(w, r, id)
}

func (h *TaskHandler) writeQueueInfo(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	info, err := h.queue.Inspect(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get queue info")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, info)
}
