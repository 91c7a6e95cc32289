package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/ErlanBelekov/taskrelay/internal/fanout"
	"github.com/ErlanBelekov/taskrelay/internal/transport/http/apierr"
	"github.com/ErlanBelekov/taskrelay/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
)

// InboundHandler serves C8's only public ingress: /in/{slug} (§4.5).
type InboundHandler struct {
	fanout *fanout.Service
	logger *slog.Logger
}

func NewInboundHandler(fanout *fanout.Service, logger *slog.Logger) *InboundHandler {
	return &InboundHandler{fanout: fanout, logger: logger.With("component", "inbound_handler")}
}

// Receive handles any HTTP method at /in/{slug} — the spec places no method
// restriction on the webhook receiver itself, only on what it forwards.
func (h *InboundHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "invalid_input", "message": "failed to read request body"}})
		return
	}

	event, err := h.fanout.Receive(c.Request.Context(), fanout.ReceiveInput{
		Slug:     c.Param("slug"),
		Method:   c.Request.Method,
		Headers:  c.Request.Header,
		Body:     body,
		SourceIP: c.ClientIP(),
	})
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"data": gin.H{"event_id": event.ID, "task_ids": event.TaskIDs}})
}

// Replay implements POST /api/v1/endpoints/{id}/events/{event_id}/replay.
func (h *InboundHandler) Replay(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c.Request.Context())

	event, err := h.getEvent(c)
	if err != nil {
		apierr.Write(c, err)
		return
	}

	n, err := h.fanout.Replay(c.Request.Context(), event, orgID)
	if err != nil {
		apierr.Write(c, mapNotFound(err, domain.ErrInboundEventEmpty))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"data": gin.H{"replayed": n}})
}

func (h *InboundHandler) getEvent(c *gin.Context) (*domain.InboundEvent, error) {
	return h.fanout.EventByID(c.Request.Context(), c.Param("event_id"))
}
