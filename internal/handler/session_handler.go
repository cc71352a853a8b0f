package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/laundryos/auth-api/internal/middleware"
	"github.com/laundryos/auth-api/internal/models"
	"github.com/laundryos/auth-api/internal/service"
	appErrors "github.com/laundryos/auth-api/pkg/errors"
	"github.com/laundryos/auth-api/pkg/response"
)

// SessionHandler exposes per-device session visibility and selective
// revocation for the authenticated user.
type SessionHandler struct {
	revocation *service.RevocationService
}

// NewSessionHandler creates a new handler.
func NewSessionHandler(revocation *service.RevocationService) *SessionHandler {
	return &SessionHandler{revocation: revocation}
}

// List godoc
// @Summary List sessions
// @Description Return every refresh session for the caller with derived status and a current-device marker
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	sessions, err := h.revocation.ListSessions(c.Request.Context(), user.ID, c.GetHeader(middleware.HeaderDeviceID))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"sessions": sessions}, "")
}

// Revoke godoc
// @Summary Revoke sessions
// @Description Revoke active sessions by refresh token id or device id
// @Tags Sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.RevokeSessionsRequest true "Revocation target"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /auth/sessions/revoke [post]
func (h *SessionHandler) Revoke(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.RevokeSessionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid revocation payload"))
		return
	}

	n, err := h.revocation.RevokeSelected(c.Request.Context(), user.ID, req, c.GetHeader(middleware.HeaderDeviceID), middleware.CurrentToken(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, models.RevokeSessionsResponse{Revoked: n}, "sessions revoked")
}
