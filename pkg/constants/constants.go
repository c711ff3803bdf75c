// Package constants defines shared constants for the credential core: token types,
// audit actions, context keys, log levels and configuration defaults.
package constants

import "time"

// ================================================================================
// Token Types
// ================================================================================

// TokenType identifies the kind of credential.
type TokenType string

const (
	// TokenTypeAccess is the value of the "type" claim in every access token.
	TokenTypeAccess TokenType = "access"
	// TokenTypeRefresh marks opaque refresh tokens in logs and audit records.
	TokenTypeRefresh TokenType = "refresh"
)

// ================================================================================
// Signing Algorithms
// ================================================================================

const (
	// AlgRS256 is RSA PKCS#1 v1.5 with SHA-256, the production algorithm.
	AlgRS256 = "RS256"
	// AlgHS256 is HMAC with SHA-256, accepted for non-production deployments.
	AlgHS256 = "HS256"

	// JWKKeyTypeRSA is the "kty" value for RSA keys.
	JWKKeyTypeRSA = "RSA"
	// JWKUseSignature is the "use" value for signing keys.
	JWKUseSignature = "sig"
)

// ================================================================================
// Audit Actions
// ================================================================================

// AuditAction names a security event recorded by the audit sink.
type AuditAction string

const (
	AuditActionLoginSuccess         AuditAction = "login.success"
	AuditActionLoginFailure         AuditAction = "login.failure"
	AuditActionLoginRateLimited     AuditAction = "login.rate_limited"
	AuditActionTokenRefreshed       AuditAction = "token.refreshed"
	AuditActionRefreshRejected      AuditAction = "token.refresh_rejected"
	AuditActionTokenRevoked         AuditAction = "token.revoked"
	AuditActionRotationApplied      AuditAction = "rotation.applied"
	AuditActionRotationStalled      AuditAction = "rotation.stalled"
	AuditActionRotationInconsistent AuditAction = "rotation.inconsistent"
	AuditActionRefreshSwept         AuditAction = "refresh.swept"
)

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey is the type for values stored in a context.Context.
type ContextKey string

const (
	// ContextKeyRequestID carries the inbound request id.
	ContextKeyRequestID ContextKey = "request_id"
	// ContextKeyTraceID carries a trace id when no OpenTelemetry span is present.
	ContextKeyTraceID ContextKey = "trace_id"
	// ContextKeyClientIP carries the caller address for audit records.
	ContextKeyClientIP ContextKey = "client_ip"
)

// ================================================================================
// Rate Limiting
// ================================================================================

const (
	// RateLimitKeyLogin prefixes the per-username login bucket.
	RateLimitKeyLogin = "login:"
	// RateLimitKeyLoginIP prefixes the per-client-address login bucket.
	RateLimitKeyLoginIP = "login-ip:"
)

// ================================================================================
// Logging
// ================================================================================

// LogLevel represents the severity level of log messages.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ================================================================================
// Defaults
// ================================================================================

const (
	DefaultAccessTokenTTL     = 15 * time.Minute
	DefaultRefreshTokenTTL    = 30 * 24 * time.Hour
	DefaultGracePeriodSeconds = 24 * 60 * 60
	DefaultJWKSCacheTTL       = 5 * time.Minute
	DefaultRotationInterval   = time.Minute
	DefaultSweepInterval      = time.Hour
	DefaultRateLimitAttempts  = 5
	DefaultRateLimitWindow    = 15 * time.Minute

	// RefreshTokenEntropyBytes is the number of random bytes in a refresh token.
	RefreshTokenEntropyBytes = 32
	// MinHMACSecretBytes is the minimum HS256 secret length.
	MinHMACSecretBytes = 32
)

// ================================================================================
// Storage Keys
// ================================================================================

const (
	// RedisKeyJWKS holds the cached JWKS document.
	RedisKeyJWKS = "credcore:jwks:current"
	// RedisKeyRateLimitPrefix prefixes every rate-limit bucket.
	RedisKeyRateLimitPrefix = "credcore:rl:"
)
