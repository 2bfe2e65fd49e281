package handler

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/navid-fn/radar-history/internal/models"
	"github.com/navid-fn/radar-history/internal/service"
	"github.com/navid-fn/radar-history/internal/taskmgr"
)

// Downloader starts background download tasks.
type Downloader interface {
	Submit(params models.DownloadParams) (string, error)
}

// TaskStore is the read and delete side of the task manager.
type TaskStore interface {
	Get(ctx context.Context, id string) (*models.Task, error)
	List(ctx context.Context) []*models.Task
	Delete(id string) error
}

// Response is the envelope of every API answer.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type TaskHandler struct {
	downloads Downloader
	tasks     TaskStore
	defaults  models.DownloadParams
}

// NewTaskHandler builds the handler. defaults fill the tuning fields a
// request leaves unset.
func NewTaskHandler(downloads Downloader, tasks TaskStore, defaults models.DownloadParams) *TaskHandler {
	return &TaskHandler{
		downloads: downloads,
		tasks:     tasks,
		defaults:  defaults,
	}
}

func ok(c *gin.Context, status int, msg string, data any) {
	c.JSON(status, Response{Code: status, Message: msg, Data: data})
}

func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrInvalidParams), errors.Is(err, service.ErrUnknownExchange):
		status = http.StatusBadRequest
	case errors.Is(err, taskmgr.ErrTaskNotFound):
		status = http.StatusNotFound
	}
	c.JSON(status, Response{Code: status, Message: err.Error()})
}

// CreateDownload handles POST /v1/download/crypto.
func (h *TaskHandler) CreateDownload(c *gin.Context) {
	var params models.DownloadParams
	if err := c.ShouldBindJSON(&params); err != nil {
		fail(c, errors.Join(models.ErrInvalidParams, err))
		return
	}
	if params.Exchange != "" && !slices.Contains(service.SupportedExchanges, strings.ToLower(strings.TrimSpace(params.Exchange))) {
		fail(c, service.ErrUnknownExchange)
		return
	}
	id, err := h.downloads.Submit(params.WithDefaults(h.defaults))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusAccepted, "task created", gin.H{"task_id": id})
}

// GetTask handles GET /v1/tasks/:id.
func (h *TaskHandler) GetTask(c *gin.Context) {
	task, err := h.tasks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "ok", task)
}

// ListTasks handles GET /v1/tasks with an optional status filter.
func (h *TaskHandler) ListTasks(c *gin.Context) {
	status := models.TaskStatus(c.Query("status"))
	switch status {
	case "", models.TaskPending, models.TaskRunning, models.TaskCompleted, models.TaskFailed:
	default:
		fail(c, errors.Join(models.ErrInvalidParams, errors.New("unknown status "+string(status))))
		return
	}

	tasks := h.tasks.List(c.Request.Context())
	if status != "" {
		tasks = slices.DeleteFunc(tasks, func(t *models.Task) bool { return t.Status != status })
	}
	ok(c, http.StatusOK, "ok", tasks)
}

// DeleteTask handles DELETE /v1/tasks/:id.
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	if err := h.tasks.Delete(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "task deleted", nil)
}
