// Package errors defines the error taxonomy of the credential core.
// Errors carry a stable Code that callers map to their own transport; this package
// never decides transport status codes. Credential-validation failures collapse to a
// single public outcome through Public.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code identifies an error kind.
type Code string

const (
	CodeMalformedToken        Code = "malformed_token"
	CodeExpiredToken          Code = "expired_token"
	CodeUnknownSigningKey     Code = "unknown_signing_key"
	CodeInvalidSignature      Code = "invalid_signature"
	CodeRevokedRefreshToken   Code = "revoked_refresh_token"
	CodeRefreshTokenNotFound  Code = "refresh_token_not_found"
	CodeRateLimited           Code = "rate_limited"
	CodeKeySetInconsistent    Code = "key_set_inconsistent"
	CodeKeySetNotFound        Code = "key_set_not_found"
	CodeSigningKeyUnavailable Code = "signing_key_unavailable"
	CodeConflict              Code = "conflict"
	CodeStorageUnavailable    Code = "storage_unavailable"
	CodeInvalidArgument       Code = "invalid_argument"
	CodeInvalidCredentials    Code = "invalid_credentials"
	CodeUnauthorized          Code = "unauthorized"
	CodeInternal              Code = "internal"
)

// ================================================================================
// AppError
// ================================================================================

// AppError is a structured error with a code, a message, an optional cause and metadata.
// The With* methods return copies, so package-level sentinels are never mutated.
type AppError struct {
	code     Code
	message  string
	cause    error
	metadata map[string]interface{}
}

// New creates an AppError.
func New(code Code, message string) *AppError {
	return &AppError{code: code, message: message}
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error kind.
func (e *AppError) Code() Code {
	return e.code
}

// Message returns the message without the cause.
func (e *AppError) Message() string {
	return e.message
}

// Unwrap returns the underlying cause for error chain support.
func (e *AppError) Unwrap() error {
	return e.cause
}

// Is reports whether target is an AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.code == e.code
}

// Metadata returns a copy of the attached metadata.
func (e *AppError) Metadata() map[string]interface{} {
	out := make(map[string]interface{}, len(e.metadata))
	for k, v := range e.metadata {
		out[k] = v
	}
	return out
}

// WithCause returns a copy of the error wrapping cause.
func (e *AppError) WithCause(cause error) *AppError {
	c := e.clone()
	c.cause = cause
	return c
}

// WithMessage returns a copy of the error with a different message.
func (e *AppError) WithMessage(format string, args ...interface{}) *AppError {
	c := e.clone()
	c.message = fmt.Sprintf(format, args...)
	return c
}

// WithMetadata returns a copy of the error with an extra metadata entry.
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	c := e.clone()
	c.metadata[key] = value
	return c
}

func (e *AppError) clone() *AppError {
	c := &AppError{
		code:     e.code,
		message:  e.message,
		cause:    e.cause,
		metadata: make(map[string]interface{}, len(e.metadata)+1),
	}
	for k, v := range e.metadata {
		c.metadata[k] = v
	}
	return c
}

// ================================================================================
// Sentinels
// ================================================================================

var (
	ErrMalformedToken        = New(CodeMalformedToken, "token is malformed")
	ErrExpiredToken          = New(CodeExpiredToken, "token has expired")
	ErrUnknownSigningKey     = New(CodeUnknownSigningKey, "token signed by an unknown or unusable key")
	ErrInvalidSignature      = New(CodeInvalidSignature, "token signature is invalid")
	ErrRevokedRefreshToken   = New(CodeRevokedRefreshToken, "refresh token has been revoked")
	ErrRefreshTokenNotFound  = New(CodeRefreshTokenNotFound, "refresh token not found")
	ErrRateLimited           = New(CodeRateLimited, "too many attempts")
	ErrKeySetInconsistent    = New(CodeKeySetInconsistent, "active key id is not present in the key set")
	ErrKeySetNotFound        = New(CodeKeySetNotFound, "no key set has been stored")
	ErrSigningKeyUnavailable = New(CodeSigningKeyUnavailable, "active signing key is unavailable")
	ErrConflict              = New(CodeConflict, "conflicting write")
	ErrStorageUnavailable    = New(CodeStorageUnavailable, "storage unavailable")
	ErrInvalidArgument       = New(CodeInvalidArgument, "invalid argument")
	ErrInvalidCredentials    = New(CodeInvalidCredentials, "invalid credentials")
	ErrUnauthorized          = New(CodeUnauthorized, "unauthorized")
	ErrInternal              = New(CodeInternal, "internal error")
)

// ================================================================================
// Helpers
// ================================================================================

// CodeOf returns the code of the first AppError in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.code
	}
	return CodeInternal
}

// Is is a shorthand for the standard library errors.Is.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is a shorthand for the standard library errors.As.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// Join is a shorthand for the standard library errors.Join.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// IsCredentialError reports whether err is one of the kinds that must never be
// distinguished towards an end user.
func IsCredentialError(err error) bool {
	switch CodeOf(err) {
	case CodeMalformedToken, CodeExpiredToken, CodeUnknownSigningKey, CodeInvalidSignature,
		CodeRevokedRefreshToken, CodeRefreshTokenNotFound, CodeInvalidCredentials, CodeUnauthorized:
		return true
	}
	return false
}

// Public maps err to the error that may be shown to an end user. Every credential
// failure becomes ErrUnauthorized, rate limiting and argument errors pass through
// without their cause, and anything else becomes ErrInternal.
func Public(err error) *AppError {
	if err == nil {
		return nil
	}
	if IsCredentialError(err) {
		return ErrUnauthorized
	}
	switch CodeOf(err) {
	case CodeRateLimited:
		return ErrRateLimited
	case CodeInvalidArgument:
		return ErrInvalidArgument
	}
	return ErrInternal
}

// Storage wraps a driver error as ErrStorageUnavailable.
func Storage(op string, cause error) *AppError {
	return ErrStorageUnavailable.WithMessage("storage unavailable during %s", op).WithCause(cause)
}
