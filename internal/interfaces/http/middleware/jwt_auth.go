package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/credcore/internal/application/service"
	"github.com/turtacn/credcore/pkg/errors"
)

// ClaimsKey is the gin context key holding the verified access token claims.
const ClaimsKey = "credcore.claims"

// extractBearer extracts the token from the Authorization header.
func extractBearer(authHeader string) string {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RequireAccessToken rejects requests without a valid bearer access token. Every
// failure is answered with the same 401 body.
func RequireAccessToken(auth service.AuthAppService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": string(errors.CodeUnauthorized)})
			return
		}
		claims, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			status := http.StatusUnauthorized
			if errors.CodeOf(err) == errors.CodeInternal {
				status = http.StatusInternalServerError
			}
			c.AbortWithStatusJSON(status, gin.H{"error": string(errors.CodeOf(err))})
			return
		}
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}
