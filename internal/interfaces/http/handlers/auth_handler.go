package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/credcore/internal/application/dto"
	"github.com/turtacn/credcore/internal/application/service"
	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/interfaces/http/middleware"
	"github.com/turtacn/credcore/pkg/errors"
)

// AuthHandler handles HTTP requests for authentication.
type AuthHandler struct {
	authService service.AuthAppService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService service.AuthAppService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendError(c, errors.ErrInvalidArgument.WithCause(err))
		return
	}
	req.ClientIP = c.ClientIP()

	pair, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		SendError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewTokenResponse(pair))
}

// Refresh handles POST /auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req dto.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendError(c, errors.ErrInvalidArgument.WithCause(err))
		return
	}

	pair, err := h.authService.Refresh(c.Request.Context(), &req)
	if err != nil {
		SendError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewTokenResponse(pair))
}

// Logout handles POST /auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req dto.LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendError(c, errors.ErrInvalidArgument.WithCause(err))
		return
	}

	if err := h.authService.Logout(c.Request.Context(), &req); err != nil {
		SendError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UserInfo handles GET /auth/userinfo behind RequireAccessToken.
func (h *AuthHandler) UserInfo(c *gin.Context) {
	v, ok := c.Get(middleware.ClaimsKey)
	if !ok {
		SendError(c, errors.ErrUnauthorized)
		return
	}
	claims := v.(*models.AccessTokenClaims)
	c.JSON(http.StatusOK, gin.H{
		"sub":        claims.Subject,
		"roles":      claims.Roles,
		"attributes": claims.Attributes,
		"exp":        claims.ExpiresAt.Unix(),
	})
}
