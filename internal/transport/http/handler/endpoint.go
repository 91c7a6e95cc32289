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

type EndpointHandler struct {
	endpoints *usecase.EndpointUsecase
	logger    *slog.Logger
}

func NewEndpointHandler(endpoints *usecase.EndpointUsecase, logger *slog.Logger) *EndpointHandler {
	return &EndpointHandler{endpoints: endpoints, logger: logger.With("component", "endpoint_handler")}
}

type createEndpointRequest struct {
	Name             string            `json:"name" binding:"required"`
	ForwardURLs      []string          `json:"forward_urls" binding:"required,min=1,dive,url"`
	ForwardMethod    *string           `json:"forward_method"`
	ForwardHeaders   map[string]string `json:"forward_headers"`
	ForwardBody      *string           `json:"forward_body"`
	RetryAttempts    int               `json:"retry_attempts"`
	UseQueue         bool              `json:"use_queue"`
	NotifyOnFailure  *bool             `json:"notify_on_failure"`
	NotifyOnRecovery *bool             `json:"notify_on_recovery"`
	OnFailureURL     *string           `json:"on_failure_url"`
	OnRecoveryURL    *string           `json:"on_recovery_url"`
}

func (h *EndpointHandler) Create(c *gin.Context) {
	var req createEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.WriteBindError(c, err)
		return
	}

	e := &domain.Endpoint{
		OrganizationID:   middleware.OrgIDFromContext(c.Request.Context()),
		Name:             req.Name,
		ForwardURLs:      req.ForwardURLs,
		ForwardMethod:    req.ForwardMethod,
		ForwardHeaders:   req.ForwardHeaders,
		ForwardBody:      req.ForwardBody,
		RetryAttempts:    req.RetryAttempts,
		UseQueue:         req.UseQueue,
		Enabled:          true,
		NotifyOnFailure:  req.NotifyOnFailure,
		NotifyOnRecovery: req.NotifyOnRecovery,
		OnFailureURL:     req.OnFailureURL,
		OnRecoveryURL:    req.OnRecoveryURL,
	}
	created, err := h.endpoints.Create(c.Request.Context(), e)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": created})
}

func (h *EndpointHandler) GetByID(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c.Request.Context())
	e, err := h.endpoints.GetByID(c.Request.Context(), c.Param("id"), orgID)
	if err != nil {
		apierr.Write(c, mapNotFound(err, domain.ErrEndpointNotFound))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": e})
}

func (h *EndpointHandler) List(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c.Request.Context())
	endpoints, err := h.endpoints.List(c.Request.Context(), orgID)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": endpoints})
}

func (h *EndpointHandler) Update(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c.Request.Context())
	id := c.Param("id")

	existing, err := h.endpoints.GetByID(c.Request.Context(), id, orgID)
	if err != nil {
		apierr.Write(c, mapNotFound(err, domain.ErrEndpointNotFound))
		return
	}

	var req createEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.WriteBindError(c, err)
		return
	}

	existing.Name = req.Name
	existing.ForwardURLs = req.ForwardURLs
	existing.ForwardMethod = req.ForwardMethod
	existing.ForwardHeaders = req.ForwardHeaders
	existing.ForwardBody = req.ForwardBody
	existing.RetryAttempts = req.RetryAttempts
	existing.UseQueue = req.UseQueue
	existing.NotifyOnFailure = req.NotifyOnFailure
	existing.NotifyOnRecovery = req.NotifyOnRecovery
	existing.OnFailureURL = req.OnFailureURL
	existing.OnRecoveryURL = req.OnRecoveryURL

	updated, err := h.endpoints.Update(c.Request.Context(), existing)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": updated})
}

func (h *EndpointHandler) Delete(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c.Request.Context())
	if err := h.endpoints.Delete(c.Request.Context(), c.Param("id"), orgID); err != nil {
		apierr.Write(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
