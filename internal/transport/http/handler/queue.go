package handler

import (
	"log/slog"
	"net/http"

	"github.com/ErlanBelekov/taskrelay/internal/transport/http/apierr"
	"github.com/ErlanBelekov/taskrelay/internal/transport/http/middleware"
	"github.com/ErlanBelekov/taskrelay/internal/usecase"
	"github.com/gin-gonic/gin"
)

type QueueHandler struct {
	queues *usecase.QueueUsecase
	logger *slog.Logger
}

func NewQueueHandler(queues *usecase.QueueUsecase, logger *slog.Logger) *QueueHandler {
	return &QueueHandler{queues: queues, logger: logger.With("component", "queue_handler")}
}

func (h *QueueHandler) List(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c.Request.Context())
	queues, err := h.queues.List(c.Request.Context(), orgID)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": queues})
}

func (h *QueueHandler) Pause(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c.Request.Context())
	if err := h.queues.Pause(c.Request.Context(), orgID, c.Param("name")); err != nil {
		apierr.Write(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *QueueHandler) Resume(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c.Request.Context())
	if err := h.queues.Resume(c.Request.Context(), orgID, c.Param("name")); err != nil {
		apierr.Write(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Cancel implements DELETE /queues/{name}/executions (§6: "DELETE
// /api/v1/tasks?queue=N" in the distilled form — exposed here as a queue
// sub-resource since cancellation is scoped to the queue, not a task).
func (h *QueueHandler) Cancel(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c.Request.Context())
	n, err := h.queues.Cancel(c.Request.Context(), orgID, c.Param("name"))
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"cancelled": n}})
}
