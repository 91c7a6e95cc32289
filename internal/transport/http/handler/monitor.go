package handler

import (
	"log/slog"
	"net/http"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/ErlanBelekov/taskrelay/internal/transport/http/apierr"
	"github.com/ErlanBelekov/taskrelay/internal/transport/http/middleware"
	"github.com/ErlanBelekov/taskrelay/internal/usecase"
	"github.com/gin-gonic/gin"
)

type MonitorHandler struct {
	monitors *usecase.MonitorUsecase
	logger   *slog.Logger
}

func NewMonitorHandler(monitors *usecase.MonitorUsecase, logger *slog.Logger) *MonitorHandler {
	return &MonitorHandler{monitors: monitors, logger: logger.With("component", "monitor_handler")}
}

type createMonitorRequest struct {
	Name               string                      `json:"name" binding:"required"`
	ScheduleType       domain.MonitorScheduleType  `json:"schedule_type" binding:"required,oneof=interval cron"`
	IntervalSeconds    *int                        `json:"interval_seconds"`
	CronExpression     *string                     `json:"cron_expression"`
	GracePeriodSeconds int                         `json:"grace_period_seconds"`
	NotifyOnFailure    *bool                       `json:"notify_on_failure"`
	NotifyOnRecovery   *bool                       `json:"notify_on_recovery"`
}

func (h *MonitorHandler) Create(c *gin.Context) {
	var req createMonitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.WriteBindError(c, err)
		return
	}

	grace := req.GracePeriodSeconds
	if grace == 0 {
		grace = 300
	}

	m, err := h.monitors.Create(c.Request.Context(), usecase.CreateMonitorInput{
		OrganizationID:     middleware.OrgIDFromContext(c.Request.Context()),
		Name:               req.Name,
		ScheduleType:       req.ScheduleType,
		IntervalSeconds:    req.IntervalSeconds,
		CronExpression:     req.CronExpression,
		GracePeriodSeconds: grace,
		NotifyOnFailure:    req.NotifyOnFailure,
		NotifyOnRecovery:   req.NotifyOnRecovery,
	})
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": m})
}

func (h *MonitorHandler) GetByID(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c.Request.Context())
	m, err := h.monitors.GetByID(c.Request.Context(), c.Param("id"), orgID)
	if err != nil {
		apierr.Write(c, mapNotFound(err, domain.ErrMonitorNotFound))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": m})
}

func (h *MonitorHandler) List(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c.Request.Context())
	monitors, err := h.monitors.List(c.Request.Context(), orgID)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": monitors})
}

type updateMonitorRequest struct {
	Name               string                     `json:"name" binding:"required"`
	ScheduleType       domain.MonitorScheduleType `json:"schedule_type" binding:"required,oneof=interval cron"`
	IntervalSeconds    *int                       `json:"interval_seconds"`
	CronExpression     *string                    `json:"cron_expression"`
	GracePeriodSeconds int                        `json:"grace_period_seconds"`
	Enabled            bool                       `json:"enabled"`
	NotifyOnFailure    *bool                      `json:"notify_on_failure"`
	NotifyOnRecovery   *bool                      `json:"notify_on_recovery"`
}

func (h *MonitorHandler) Update(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c.Request.Context())

	var req updateMonitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.WriteBindError(c, err)
		return
	}

	m, err := h.monitors.Update(c.Request.Context(), usecase.UpdateMonitorInput{
		ID:                 c.Param("id"),
		OrganizationID:     orgID,
		Name:               req.Name,
		ScheduleType:       req.ScheduleType,
		IntervalSeconds:    req.IntervalSeconds,
		CronExpression:     req.CronExpression,
		GracePeriodSeconds: req.GracePeriodSeconds,
		Enabled:            req.Enabled,
		NotifyOnFailure:    req.NotifyOnFailure,
		NotifyOnRecovery:   req.NotifyOnRecovery,
	})
	if err != nil {
		apierr.Write(c, mapNotFound(err, domain.ErrMonitorNotFound))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": m})
}

func (h *MonitorHandler) Delete(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c.Request.Context())
	if err := h.monitors.Delete(c.Request.Context(), c.Param("id"), orgID); err != nil {
		apierr.Write(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Ping implements the public GET/POST /ping/{token} heartbeat endpoint
// (§6), unauthenticated by API key since the token itself is the secret.
func (h *MonitorHandler) Ping(c *gin.Context) {
	m, err := h.monitors.Ping(c.Request.Context(), c.Param("token"))
	if err != nil {
		apierr.Write(c, mapNotFound(err, domain.ErrPingTokenUnknown))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"status": m.Status, "next_expected_at": m.NextExpectedAt}})
}
