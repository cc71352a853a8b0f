package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/laundryos/auth-api/internal/middleware"
	"github.com/laundryos/auth-api/internal/models"
	"github.com/laundryos/auth-api/internal/service"
	appErrors "github.com/laundryos/auth-api/pkg/errors"
	"github.com/laundryos/auth-api/pkg/response"
)

// AuthHandler wires HTTP endpoints to the auth, token, and revocation
// services.
type AuthHandler struct {
	auth       *service.AuthService
	tokens     *service.TokenService
	revocation *service.RevocationService
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(auth *service.AuthService, tokens *service.TokenService, revocation *service.RevocationService) *AuthHandler {
	return &AuthHandler{auth: auth, tokens: tokens, revocation: revocation}
}

// Login godoc
// @Summary Authenticate user
// @Description Authenticate by phone and PIN; unrecognized devices receive a one-time-code challenge instead of tokens
// @Tags Authentication
// @Accept json
// @Produce json
// @Param X-Device-Id header string true "Client device identifier"
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload"))
		return
	}

	outcome, err := h.auth.Login(c.Request.Context(), req, middleware.DeviceContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	if outcome.Challenge != nil {
		response.OK(c, outcome.Challenge, outcome.Challenge.Message)
		return
	}
	response.OK(c, outcome.Response, "login successful")
}

// VerifyOTP godoc
// @Summary Verify login code
// @Description Finalize a pending login from an unrecognized device
// @Tags Authentication
// @Accept json
// @Produce json
// @Param X-Device-Id header string true "Client device identifier"
// @Param payload body models.VerifyOTPRequest true "Verification payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auth/verify-otp [post]
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req models.VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid verification payload"))
		return
	}

	res, err := h.auth.VerifyLoginOTP(c.Request.Context(), req, middleware.DeviceContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, res, "login successful")
}

// ResendOTP godoc
// @Summary Resend one-time code
// @Description Re-issue a code for the given purpose; the response shape does not reveal whether the identity exists
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.ResendOTPRequest true "Resend payload"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /auth/resend-otp [post]
func (h *AuthHandler) ResendOTP(c *gin.Context) {
	var req models.ResendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resend payload"))
		return
	}

	res, err := h.auth.ResendOTP(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, res, "code sent")
}

// Refresh godoc
// @Summary Rotate refresh token
// @Description Exchange a refresh token for a new access/refresh pair; the presented token is consumed
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RefreshRequest false "Refresh payload; the token may instead be sent as a bearer header"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/refresh-token [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	presented := bearerToken(c)
	if presented == "" {
		var req models.RefreshRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			presented = req.RefreshToken
		}
	}
	if presented == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrInvalidRefresh, ""))
		return
	}

	bundle, err := h.tokens.Rotate(c.Request.Context(), presented)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, bundle, "token refreshed")
}

// Logout godoc
// @Summary Logout current session
// @Description Revoke the presented refresh token and denylist the current access token
// @Tags Authentication
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.LogoutRequest true "Logout payload"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	var req models.LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "refresh token required"))
		return
	}

	h.revocation.RevokeByToken(c.Request.Context(), req.RefreshToken)
	h.revocation.BlacklistAccessToken(c.Request.Context(), middleware.CurrentToken(c))

	response.OK(c, nil, "logged out")
}

// LogoutAll godoc
// @Summary Logout everywhere
// @Description Revoke every session for the caller and invalidate all previously issued tokens
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/logout-all [post]
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.revocation.RevokeAllForUser(c.Request.Context(), user.ID, true); err != nil {
		response.Error(c, err)
		return
	}
	h.revocation.BlacklistAccessToken(c.Request.Context(), middleware.CurrentToken(c))

	response.OK(c, nil, "logged out everywhere")
}

// Me godoc
// @Summary Current principal
// @Description Return the authenticated user's profile
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	response.OK(c, user.Info(), "")
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
