package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/credcore/internal/application/dto"
	"github.com/turtacn/credcore/internal/infrastructure/monitoring"
	"github.com/turtacn/credcore/pkg/errors"
)

// statusFor maps a public error code to its HTTP status.
func statusFor(code errors.Code) int {
	switch code {
	case errors.CodeUnauthorized:
		return http.StatusUnauthorized
	case errors.CodeRateLimited:
		return http.StatusTooManyRequests
	case errors.CodeInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// SendError writes the public form of err. The detailed kind never leaves the process.
func SendError(c *gin.Context, err error) {
	body := dto.PublicErrorResponse(err, monitoring.TraceIDFromContext(c.Request.Context()))
	c.AbortWithStatusJSON(statusFor(errors.Code(body.Error)), body)
}
