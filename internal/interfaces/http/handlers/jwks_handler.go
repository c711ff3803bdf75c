package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/credcore/internal/application"
	"github.com/turtacn/credcore/pkg/logger"
)

// JWKSHandler serves the public key set.
type JWKSHandler struct {
	publisher *application.JWKSPublisher
	logger    logger.Logger
}

// NewJWKSHandler creates a new JWKSHandler.
func NewJWKSHandler(publisher *application.JWKSPublisher, log logger.Logger) *JWKSHandler {
	return &JWKSHandler{publisher: publisher, logger: log.WithComponent("jwks_handler")}
}

// GetJWKS handles GET /.well-known/jwks.json. Caching headers are added by the
// ETag middleware.
func (h *JWKSHandler) GetJWKS(c *gin.Context) {
	jwks, err := h.publisher.GetOrBuild(c.Request.Context())
	if err != nil {
		h.logger.Error(c.Request.Context(), "failed to build JWKS", err)
		SendError(c, err)
		return
	}
	c.JSON(http.StatusOK, jwks)
}
