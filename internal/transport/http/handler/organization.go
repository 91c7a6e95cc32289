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

type OrganizationHandler struct {
	orgs   *usecase.OrganizationUsecase
	logger *slog.Logger
}

func NewOrganizationHandler(orgs *usecase.OrganizationUsecase, logger *slog.Logger) *OrganizationHandler {
	return &OrganizationHandler{orgs: orgs, logger: logger.With("component", "organization_handler")}
}

func (h *OrganizationHandler) GetSelf(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c.Request.Context())
	org, err := h.orgs.GetByID(c.Request.Context(), orgID)
	if err != nil {
		apierr.Write(c, mapNotFound(err, domain.ErrOrganizationNotFound))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": org})
}

type updateNotifyConfigRequest struct {
	NotifyOnFailure  bool    `json:"notify_on_failure"`
	NotifyOnRecovery bool    `json:"notify_on_recovery"`
	NotifyEmail      *string `json:"notify_email"`
	NotifyWebhookURL *string `json:"notify_webhook_url"`
}

func (h *OrganizationHandler) UpdateNotifyConfig(c *gin.Context) {
	var req updateNotifyConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.WriteBindError(c, err)
		return
	}

	orgID := middleware.OrgIDFromContext(c.Request.Context())
	if err := h.orgs.UpdateNotifyConfig(c.Request.Context(), orgID, req.NotifyOnFailure, req.NotifyOnRecovery, req.NotifyEmail, req.NotifyWebhookURL); err != nil {
		apierr.Write(c, mapNotFound(err, domain.ErrOrganizationNotFound))
		return
	}
	c.Status(http.StatusNoContent)
}
