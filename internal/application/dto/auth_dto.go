// Package dto holds the request and response shapes of the application services.
package dto

import (
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/pkg/errors"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// ValidateStruct checks s against its validate tags.
func ValidateStruct(s interface{}) error {
	validateOnce.Do(func() { validate = validator.New() })
	if err := validate.Struct(s); err != nil {
		return errors.ErrInvalidArgument.WithMessage("invalid request").WithCause(err)
	}
	return nil
}

// LoginRequest 登录请求 DTO
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=256"`
	Password string `json:"password" validate:"required,max=1024"`
	ClientIP string `json:"-" validate:"omitempty,ip"`
}

// RefreshRequest 令牌刷新请求 DTO
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required,max=512"`
}

// LogoutRequest 注销请求 DTO
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required,max=512"`
}

// TokenResponse 令牌对响应 DTO
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}

// NewTokenResponse converts a TokenPair.
func NewTokenResponse(pair *models.TokenPair) *TokenResponse {
	return &TokenResponse{
		AccessToken:      pair.AccessToken,
		TokenType:        pair.TokenType,
		ExpiresIn:        pair.ExpiresIn,
		RefreshToken:     pair.RefreshToken,
		RefreshExpiresIn: pair.RefreshExpiresIn,
	}
}

// ErrorResponse 错误响应 DTO. Code is one of the public codes only.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// PublicErrorResponse maps err to the body an end user may see.
func PublicErrorResponse(err error, traceID string) *ErrorResponse {
	return &ErrorResponse{Error: string(errors.Public(err).Code()), TraceID: traceID}
}
