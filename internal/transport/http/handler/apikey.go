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

type APIKeyHandler struct {
	keys   *usecase.APIKeyUsecase
	logger *slog.Logger
}

func NewAPIKeyHandler(keys *usecase.APIKeyUsecase, logger *slog.Logger) *APIKeyHandler {
	return &APIKeyHandler{keys: keys, logger: logger.With("component", "apikey_handler")}
}

type createAPIKeyRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *APIKeyHandler) Create(c *gin.Context) {
	var req createAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.WriteBindError(c, err)
		return
	}

	orgID := middleware.OrgIDFromContext(c.Request.Context())
	key, secret, err := h.keys.Create(c.Request.Context(), orgID, req.Name)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	// The raw secret is returned exactly once; it cannot be recovered later.
	c.JSON(http.StatusCreated, gin.H{"data": gin.H{"api_key": key, "secret": secret}})
}

func (h *APIKeyHandler) List(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c.Request.Context())
	keys, err := h.keys.List(c.Request.Context(), orgID)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": keys})
}

func (h *APIKeyHandler) Delete(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c.Request.Context())
	if err := h.keys.Delete(c.Request.Context(), c.Param("id"), orgID); err != nil {
		apierr.Write(c, mapNotFound(err, domain.ErrAPIKeyNotFound))
		return
	}
	c.Status(http.StatusNoContent)
}
