package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ErlanBelekov/taskrelay/internal/apperror"
	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/ErlanBelekov/taskrelay/internal/transport/http/apierr"
	"github.com/ErlanBelekov/taskrelay/internal/transport/http/middleware"
	"github.com/ErlanBelekov/taskrelay/internal/usecase"
	"github.com/gin-gonic/gin"
)

type InviteHandler struct {
	invites *usecase.InviteUsecase
	logger  *slog.Logger
}

func NewInviteHandler(invites *usecase.InviteUsecase, logger *slog.Logger) *InviteHandler {
	return &InviteHandler{invites: invites, logger: logger.With("component", "invite_handler")}
}

type createInviteRequest struct {
	Email string `json:"email" binding:"required,email"`
}

func (h *InviteHandler) Create(c *gin.Context) {
	var req createInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.WriteBindError(c, err)
		return
	}

	orgID := middleware.OrgIDFromContext(c.Request.Context())
	link, err := h.invites.Create(c.Request.Context(), orgID, req.Email)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": gin.H{"invite_link": link}})
}

// Accept is a public endpoint: the JWT in the path is itself the bearer of
// authorization, matching the invite-link pattern (§3: "membership at the
// interface level only").
func (h *InviteHandler) Accept(c *gin.Context) {
	member, err := h.invites.Accept(c.Request.Context(), c.Param("token"))
	if err != nil {
		apierr.Write(c, mapInviteError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": member})
}

func mapInviteError(err error) error {
	if errors.Is(err, domain.ErrInviteAlreadyAccepted) {
		return apperror.New(apperror.KindConflict, domain.ErrInviteAlreadyAccepted.Error())
	}
	return mapNotFound(err, domain.ErrInviteNotFound)
}
