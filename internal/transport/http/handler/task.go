package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ErlanBelekov/taskrelay/internal/apperror"
	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/ErlanBelekov/taskrelay/internal/transport/http/apierr"
	"github.com/ErlanBelekov/taskrelay/internal/transport/http/middleware"
	"github.com/ErlanBelekov/taskrelay/internal/usecase"
	"github.com/gin-gonic/gin"
)

type TaskHandler struct {
	tasks      *usecase.TaskUsecase
	executions *usecase.ExecutionUsecase
	logger     *slog.Logger
}

func NewTaskHandler(tasks *usecase.TaskUsecase, executions *usecase.ExecutionUsecase, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, executions: executions, logger: logger.With("component", "task_handler")}
}

type createTaskRequest struct {
	Name                string            `json:"name" binding:"required"`
	URL                 string            `json:"url" binding:"required,url"`
	Method              string            `json:"method" binding:"required,oneof=GET POST PUT PATCH DELETE"`
	Headers             map[string]string `json:"headers"`
	Body                *string           `json:"body"`
	CronExpression      *string           `json:"cron_expression"`
	ScheduledAt         *time.Time        `json:"scheduled_at"`
	Enabled             *bool             `json:"enabled"`
	TimeoutMS           int               `json:"timeout_ms"`
	RetryAttempts       int               `json:"retry_attempts"`
	CallbackURL         *string           `json:"callback_url"`
	ExpectedStatusCodes []int             `json:"expected_status_codes"`
	ExpectedBodyPattern *string           `json:"expected_body_pattern"`
	Queue               *string           `json:"queue"`
	NotifyOnFailure     *bool             `json:"notify_on_failure"`
	NotifyOnRecovery    *bool             `json:"notify_on_recovery"`
}

func (h *TaskHandler) Create(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.WriteBindError(c, err)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	timeoutMS := req.TimeoutMS
	if timeoutMS == 0 {
		timeoutMS = 30_000
	}

	task, err := h.tasks.Create(c.Request.Context(), usecase.CreateTaskInput{
		OrganizationID:      middleware.OrgIDFromContext(c.Request.Context()),
		Name:                req.Name,
		URL:                 req.URL,
		Method:              req.Method,
		Headers:             req.Headers,
		Body:                req.Body,
		CronExpression:      req.CronExpression,
		ScheduledAt:         req.ScheduledAt,
		Enabled:             enabled,
		TimeoutMS:           timeoutMS,
		RetryAttempts:       req.RetryAttempts,
		CallbackURL:         req.CallbackURL,
		ExpectedStatusCodes: req.ExpectedStatusCodes,
		ExpectedBodyPattern: req.ExpectedBodyPattern,
		Queue:               req.Queue,
		NotifyOnFailure:     req.NotifyOnFailure,
		NotifyOnRecovery:    req.NotifyOnRecovery,
	})
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": task})
}

type batchTaskItem struct {
	Name                string            `json:"name" binding:"required"`
	URL                 string            `json:"url" binding:"required,url"`
	Method              string            `json:"method" binding:"required,oneof=GET POST PUT PATCH DELETE"`
	Headers             map[string]string `json:"headers"`
	Body                *string           `json:"body"`
	CronExpression      *string           `json:"cron_expression"`
	ScheduledAt         *time.Time        `json:"scheduled_at"`
	Enabled             *bool             `json:"enabled"`
	TimeoutMS           int               `json:"timeout_ms"`
	RetryAttempts       int               `json:"retry_attempts"`
	ExpectedStatusCodes []int             `json:"expected_status_codes"`
	ExpectedBodyPattern *string           `json:"expected_body_pattern"`
}

type batchTaskRequest struct {
	Queue string          `json:"queue"`
	Items []batchTaskItem `json:"items" binding:"required,min=1,max=1000"`
}

// CreateBatch implements POST /tasks/batch (§6): bulk-create up to 1000
// tasks sharing one queue in a single call, returning 201 with
// {created, queue, scheduled_for}.
func (h *TaskHandler) CreateBatch(c *gin.Context) {
	var req batchTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.WriteBindError(c, err)
		return
	}

	items := make([]usecase.CreateTaskInput, 0, len(req.Items))
	for _, it := range req.Items {
		enabled := true
		if it.Enabled != nil {
			enabled = *it.Enabled
		}
		timeoutMS := it.TimeoutMS
		if timeoutMS == 0 {
			timeoutMS = 30_000
		}
		items = append(items, usecase.CreateTaskInput{
			Name:                it.Name,
			URL:                 it.URL,
			Method:              it.Method,
			Headers:             it.Headers,
			Body:                it.Body,
			CronExpression:      it.CronExpression,
			ScheduledAt:         it.ScheduledAt,
			Enabled:             enabled,
			TimeoutMS:           timeoutMS,
			RetryAttempts:       it.RetryAttempts,
			ExpectedStatusCodes: it.ExpectedStatusCodes,
			ExpectedBodyPattern: it.ExpectedBodyPattern,
		})
	}

	orgID := middleware.OrgIDFromContext(c.Request.Context())
	created, err := h.tasks.CreateBatch(c.Request.Context(), orgID, req.Queue, items)
	if err != nil {
		apierr.Write(c, err)
		return
	}

	var scheduledFor *time.Time
	if len(created) > 0 {
		scheduledFor = created[0].NextRunAt
	}
	c.JSON(http.StatusCreated, gin.H{"data": gin.H{
		"created":       len(created),
		"queue":         req.Queue,
		"scheduled_for": scheduledFor,
	}})
}

func (h *TaskHandler) GetByID(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c.Request.Context())
	task, err := h.tasks.GetByID(c.Request.Context(), c.Param("id"), orgID)
	if err != nil {
		apierr.Write(c, mapNotFound(err, domain.ErrTaskNotFound))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": task})
}

func (h *TaskHandler) List(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c.Request.Context())
	in := usecase.ListTasksInput{OrganizationID: orgID, Limit: 50}
	if q := c.Query("queue"); q != "" {
		in.Queue = &q
	}
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 {
		in.Limit = l
	}
	in.CursorID = c.Query("cursor_id")

	tasks, err := h.tasks.List(c.Request.Context(), in)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tasks})
}

type updateTaskRequest struct {
	Name                string            `json:"name" binding:"required"`
	URL                 string            `json:"url" binding:"required,url"`
	Method              string            `json:"method" binding:"required,oneof=GET POST PUT PATCH DELETE"`
	Headers             map[string]string `json:"headers"`
	Body                *string           `json:"body"`
	Enabled             bool              `json:"enabled"`
	TimeoutMS           int               `json:"timeout_ms"`
	RetryAttempts       int               `json:"retry_attempts"`
	CallbackURL         *string           `json:"callback_url"`
	ExpectedStatusCodes []int             `json:"expected_status_codes"`
	ExpectedBodyPattern *string           `json:"expected_body_pattern"`
	Queue               *string           `json:"queue"`
	NotifyOnFailure     *bool             `json:"notify_on_failure"`
	NotifyOnRecovery    *bool             `json:"notify_on_recovery"`
}

func (h *TaskHandler) Update(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c.Request.Context())
	id := c.Param("id")

	existing, err := h.tasks.GetByID(c.Request.Context(), id, orgID)
	if err != nil {
		apierr.Write(c, mapNotFound(err, domain.ErrTaskNotFound))
		return
	}

	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.WriteBindError(c, err)
		return
	}

	existing.Name = req.Name
	existing.URL = req.URL
	existing.Method = req.Method
	existing.Headers = req.Headers
	existing.Body = req.Body
	existing.Enabled = req.Enabled
	existing.TimeoutMS = req.TimeoutMS
	existing.RetryAttempts = req.RetryAttempts
	existing.CallbackURL = req.CallbackURL
	existing.ExpectedStatusCodes = req.ExpectedStatusCodes
	existing.ExpectedBodyPattern = req.ExpectedBodyPattern
	existing.Queue = req.Queue
	existing.NotifyOnFailure = req.NotifyOnFailure
	existing.NotifyOnRecovery = req.NotifyOnRecovery

	updated, err := h.tasks.Update(c.Request.Context(), existing)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": updated})
}

// Delete serves both DELETE /tasks/{id} (soft delete) and
// DELETE /tasks?queue=N (cancel every pending execution in the queue, §6).
func (h *TaskHandler) Delete(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c.Request.Context())
	id := c.Param("id")

	if id == "" {
		queue := c.Query("queue")
		if queue == "" {
			apierr.Write(c, apperror.New(apperror.KindInvalidInput, "queue query parameter is required"))
			return
		}
		cancelled, err := h.tasks.CancelQueue(c.Request.Context(), orgID, queue)
		if err != nil {
			apierr.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"cancelled": cancelled, "queue": queue}})
		return
	}

	if err := h.tasks.Delete(c.Request.Context(), id, orgID); err != nil {
		apierr.Write(c, mapNotFound(err, domain.ErrTaskNotFound))
		return
	}
	c.Status(http.StatusNoContent)
}

// Trigger implements POST /tasks/{id}/trigger (§6): runs the task
// immediately, outside its regular schedule.
func (h *TaskHandler) Trigger(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c.Request.Context())
	exec, err := h.executions.Trigger(c.Request.Context(), c.Param("id"), orgID)
	if err != nil {
		apierr.Write(c, mapNotFound(err, domain.ErrTaskNotFound))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"data": gin.H{
		"execution_id":  exec.ID,
		"status":        exec.Status,
		"scheduled_for": exec.ScheduledFor,
	}})
}

func (h *TaskHandler) ListExecutions(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c.Request.Context())
	taskID := c.Param("id")
	execs, err := h.executions.List(c.Request.Context(), usecase.ListExecutionsInput{
		TaskID: &taskID,
		OrgID:  orgID,
		Limit:  50,
	})
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": execs})
}

type syncRequest struct {
	Tasks         []createTaskRequest `json:"tasks" binding:"required"`
	DeleteRemoved bool                `json:"delete_removed"`
}

// Sync implements PUT /sync (§6): a declarative upsert of the org's task
// set keyed by name, with optional pruning of tasks the payload dropped.
func (h *TaskHandler) Sync(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.WriteBindError(c, err)
		return
	}

	items := make([]usecase.CreateTaskInput, 0, len(req.Tasks))
	for _, it := range req.Tasks {
		enabled := true
		if it.Enabled != nil {
			enabled = *it.Enabled
		}
		timeoutMS := it.TimeoutMS
		if timeoutMS == 0 {
			timeoutMS = 30_000
		}
		items = append(items, usecase.CreateTaskInput{
			Name:                it.Name,
			URL:                 it.URL,
			Method:              it.Method,
			Headers:             it.Headers,
			Body:                it.Body,
			CronExpression:      it.CronExpression,
			ScheduledAt:         it.ScheduledAt,
			Enabled:             enabled,
			TimeoutMS:           timeoutMS,
			RetryAttempts:       it.RetryAttempts,
			CallbackURL:         it.CallbackURL,
			ExpectedStatusCodes: it.ExpectedStatusCodes,
			ExpectedBodyPattern: it.ExpectedBodyPattern,
			Queue:               it.Queue,
			NotifyOnFailure:     it.NotifyOnFailure,
			NotifyOnRecovery:    it.NotifyOnRecovery,
		})
	}

	orgID := middleware.OrgIDFromContext(c.Request.Context())
	res, err := h.tasks.Sync(c.Request.Context(), orgID, items, req.DeleteRemoved)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}
