// Package service provides application-level services that orchestrate domain services and repositories
package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/turtacn/credcore/internal/application/dto"
	"github.com/turtacn/credcore/internal/domain/models"
	domainService "github.com/turtacn/credcore/internal/domain/service"
	"github.com/turtacn/credcore/internal/infrastructure/monitoring"
	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
	"github.com/turtacn/credcore/pkg/logger"
)

const bearerTokenType = "Bearer"

// AuthAppService defines the interface for authentication application service
type AuthAppService interface {
	// Login verifies primary credentials and issues a token pair
	Login(ctx context.Context, req *dto.LoginRequest) (*models.TokenPair, error)

	// Refresh issues a new access token for a valid refresh token
	Refresh(ctx context.Context, req *dto.RefreshRequest) (*models.TokenPair, error)

	// Logout revokes a refresh token
	Logout(ctx context.Context, req *dto.LogoutRequest) error

	// Authenticate verifies an access token. Failures are returned in their public form.
	Authenticate(ctx context.Context, accessToken string) (*models.AccessTokenClaims, error)
}

// LoginLimiter throttles login attempts per key.
type LoginLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

// AuthConfig holds the token lifetimes.
type AuthConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// authAppServiceImpl is the concrete implementation of AuthAppService
type authAppServiceImpl struct {
	issuer    domainService.TokenIssuer
	ledger    *domainService.RefreshTokenLedger
	verifier  domainService.CredentialVerifier
	directory domainService.SubjectDirectory
	limiter   LoginLimiter
	audit     domainService.AuditService
	config    AuthConfig
	now       func() time.Time
	logger    logger.Logger
	metrics   *monitoring.Metrics
}

// AuthOption configures the AuthAppService.
type AuthOption func(*authAppServiceImpl)

// WithAuthClock overrides the time source for refresh token expiry checks.
func WithAuthClock(now func() time.Time) AuthOption {
	return func(s *authAppServiceImpl) { s.now = now }
}

// WithAuthMetrics records logins, issuance and verification results.
func WithAuthMetrics(m *monitoring.Metrics) AuthOption {
	return func(s *authAppServiceImpl) { s.metrics = m }
}

// NewAuthAppService creates a new instance of AuthAppService
func NewAuthAppService(
	issuer domainService.TokenIssuer,
	ledger *domainService.RefreshTokenLedger,
	verifier domainService.CredentialVerifier,
	directory domainService.SubjectDirectory,
	limiter LoginLimiter,
	audit domainService.AuditService,
	cfg AuthConfig,
	log logger.Logger,
	opts ...AuthOption,
) AuthAppService {
	s := &authAppServiceImpl{
		issuer:    issuer,
		ledger:    ledger,
		verifier:  verifier,
		directory: directory,
		limiter:   limiter,
		audit:     audit,
		config:    cfg,
		now:       time.Now,
		logger:    log.WithComponent("auth_app_service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login rate-limits the attempt by client address, then by username, verifies
// the credentials and issues a token pair. A successful login resets the
// username bucket.
func (s *authAppServiceImpl) Login(ctx context.Context, req *dto.LoginRequest) (pair *models.TokenPair, err error) {
	ctx, span := monitoring.StartSpan(ctx, "AuthAppService.Login")
	defer func() { monitoring.EndSpan(span, err) }()

	if err := dto.ValidateStruct(req); err != nil {
		return nil, err
	}

	// The address bucket goes first: attempts it rejects never reach, and so
	// never lock out, the username bucket.
	if req.ClientIP != "" {
		if err := s.allow(ctx, constants.RateLimitKeyLoginIP+req.ClientIP, req.Username); err != nil {
			return nil, err
		}
	}
	userKey := constants.RateLimitKeyLogin + req.Username
	if err := s.allow(ctx, userKey, req.Username); err != nil {
		return nil, err
	}

	subjectID, err := s.verifier.Verify(ctx, req.Username, req.Password)
	if err != nil {
		if errors.IsCredentialError(err) {
			s.logger.Info(ctx, "login rejected", logger.String("username", req.Username), logger.String("client_ip", req.ClientIP))
			s.metrics.RecordLogin("failure")
			s.record(ctx, models.NewAuditEvent(constants.AuditActionLoginFailure, false, s.now()).
				WithReason(string(errors.CodeInvalidCredentials)).
				WithMetadata("username", req.Username).
				WithMetadata("client_ip", req.ClientIP))
			return nil, errors.ErrInvalidCredentials
		}
		s.logger.Error(ctx, "credential verification failed", err, logger.String("username", req.Username))
		s.metrics.RecordLogin("error")
		return nil, err
	}
	span.SetAttributes(attribute.String("subject", subjectID))

	subject, err := s.directory.Lookup(ctx, subjectID)
	if err != nil {
		s.logger.Error(ctx, "failed to resolve subject", err, logger.String("subject", subjectID))
		s.metrics.RecordLogin("error")
		return nil, err
	}

	pair, err = s.issuePair(ctx, subject)
	if err != nil {
		s.metrics.RecordLogin("error")
		return nil, err
	}

	if err := s.limiter.Reset(ctx, userKey); err != nil {
		s.logger.Warn(ctx, "failed to reset login rate limit bucket", logger.Err(err), logger.String("username", req.Username))
	}

	s.logger.Info(ctx, "login succeeded", logger.String("subject", subject.ID))
	s.metrics.RecordLogin("success")
	s.record(ctx, models.NewAuditEvent(constants.AuditActionLoginSuccess, true, s.now()).
		WithSubject(subject.ID).
		WithMetadata("client_ip", req.ClientIP))
	return pair, nil
}

// allow checks one rate limit bucket. A limiter error denies the attempt.
func (s *authAppServiceImpl) allow(ctx context.Context, key, username string) error {
	allowed, err := s.limiter.Allow(ctx, key)
	if err != nil {
		s.logger.Error(ctx, "rate limiter unavailable, denying login", err, logger.String("key", key))
		s.metrics.RecordLogin("error")
		return err
	}
	if !allowed {
		s.logger.Warn(ctx, "login rate limited", logger.String("key", key))
		s.metrics.RecordLogin("rate_limited")
		s.record(ctx, models.NewAuditEvent(constants.AuditActionLoginRateLimited, false, s.now()).
			WithReason(string(errors.CodeRateLimited)).
			WithMetadata("username", username).
			WithMetadata("bucket", key))
		return errors.ErrRateLimited
	}
	return nil
}

// issuePair mints an access token and a fresh refresh token for subject.
func (s *authAppServiceImpl) issuePair(ctx context.Context, subject *models.Subject) (*models.TokenPair, error) {
	access, err := s.issueAccess(ctx, subject)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	refresh, record, err := s.issuer.CreateRefreshToken(ctx, subject.ID, s.config.RefreshTTL)
	if err != nil {
		s.logger.Error(ctx, "failed to issue refresh token", err, logger.String("subject", subject.ID))
		return nil, err
	}
	s.metrics.RecordTokenIssue(string(constants.TokenTypeRefresh), time.Since(start))

	return &models.TokenPair{
		AccessToken:      access,
		TokenType:        bearerTokenType,
		ExpiresIn:        int64(s.config.AccessTTL.Seconds()),
		RefreshToken:     refresh,
		RefreshExpiresIn: int64(record.ExpiresAt.Sub(s.now()).Seconds()),
	}, nil
}

func (s *authAppServiceImpl) issueAccess(ctx context.Context, subject *models.Subject) (string, error) {
	start := time.Now()
	token, _, err := s.issuer.CreateAccessToken(ctx, subject.ID, subject.Roles, subject.Attributes, s.config.AccessTTL)
	if err != nil {
		s.logger.Error(ctx, "failed to issue access token", err, logger.String("subject", subject.ID))
		return "", err
	}
	s.metrics.RecordTokenIssue(string(constants.TokenTypeAccess), time.Since(start))
	return token, nil
}

// Refresh returns a new access token together with the same refresh token.
// Unknown, revoked and expired refresh tokens are rejected.
func (s *authAppServiceImpl) Refresh(ctx context.Context, req *dto.RefreshRequest) (pair *models.TokenPair, err error) {
	ctx, span := monitoring.StartSpan(ctx, "AuthAppService.Refresh")
	defer func() { monitoring.EndSpan(span, err) }()

	if err := dto.ValidateStruct(req); err != nil {
		return nil, err
	}

	now := s.now()
	record, err := s.ledger.GetByJTIHash(ctx, domainService.HashJTI(req.RefreshToken))
	switch {
	case err != nil && !errors.Is(err, errors.ErrRefreshTokenNotFound):
		s.logger.Error(ctx, "refresh token lookup failed", err)
		return nil, err
	case err != nil:
		return nil, s.rejectRefresh(ctx, "", errors.ErrRefreshTokenNotFound)
	case record.Revoked:
		return nil, s.rejectRefresh(ctx, record.UserID, errors.ErrRevokedRefreshToken)
	case record.IsExpiredAt(now):
		return nil, s.rejectRefresh(ctx, record.UserID, errors.ErrExpiredToken.WithMessage("refresh token has expired"))
	}

	subject, err := s.directory.Lookup(ctx, record.UserID)
	if err != nil {
		if errors.IsCredentialError(err) {
			return nil, s.rejectRefresh(ctx, record.UserID, err)
		}
		s.logger.Error(ctx, "failed to resolve subject", err, logger.String("subject", record.UserID))
		return nil, err
	}

	access, err := s.issueAccess(ctx, subject)
	if err != nil {
		return nil, err
	}

	s.record(ctx, models.NewAuditEvent(constants.AuditActionTokenRefreshed, true, now).WithSubject(subject.ID))
	return &models.TokenPair{
		AccessToken:      access,
		TokenType:        bearerTokenType,
		ExpiresIn:        int64(s.config.AccessTTL.Seconds()),
		RefreshToken:     req.RefreshToken,
		RefreshExpiresIn: int64(record.ExpiresAt.Sub(now).Seconds()),
	}, nil
}

func (s *authAppServiceImpl) rejectRefresh(ctx context.Context, subject string, reason error) error {
	code := errors.CodeOf(reason)
	s.logger.Info(ctx, "refresh rejected", logger.String("reason", string(code)), logger.String("subject", subject))
	s.record(ctx, models.NewAuditEvent(constants.AuditActionRefreshRejected, false, s.now()).
		WithSubject(subject).
		WithReason(string(code)))
	return reason
}

// Logout revokes the refresh token. Revoking twice succeeds; an unknown token
// returns ErrRefreshTokenNotFound.
func (s *authAppServiceImpl) Logout(ctx context.Context, req *dto.LogoutRequest) (err error) {
	ctx, span := monitoring.StartSpan(ctx, "AuthAppService.Logout")
	defer func() { monitoring.EndSpan(span, err) }()

	if err := dto.ValidateStruct(req); err != nil {
		return err
	}

	hash := domainService.HashJTI(req.RefreshToken)
	record, err := s.ledger.GetByJTIHash(ctx, hash)
	if err != nil {
		return err
	}
	if err := s.ledger.Revoke(ctx, hash); err != nil {
		s.logger.Error(ctx, "failed to revoke refresh token", err, logger.String("subject", record.UserID))
		return err
	}

	s.logger.Info(ctx, "refresh token revoked", logger.String("subject", record.UserID))
	s.metrics.RecordTokenRevocation()
	s.record(ctx, models.NewAuditEvent(constants.AuditActionTokenRevoked, true, s.now()).
		WithSubject(record.UserID).
		WithMetadata("refresh_id", record.ID))
	return nil
}

// Authenticate verifies accessToken. The detailed failure kind is logged and
// counted; the caller only sees the public error.
func (s *authAppServiceImpl) Authenticate(ctx context.Context, accessToken string) (claims *models.AccessTokenClaims, err error) {
	ctx, span := monitoring.StartSpan(ctx, "AuthAppService.Authenticate")
	defer func() { monitoring.EndSpan(span, err) }()

	claims, verr := s.issuer.DecodeAndVerify(ctx, accessToken)
	if verr != nil {
		code := errors.CodeOf(verr)
		s.logger.Info(ctx, "access token rejected", logger.String("reason", string(code)))
		s.metrics.RecordVerification(string(code))
		return nil, errors.Public(verr)
	}
	s.metrics.RecordVerification("valid")
	return claims, nil
}

func (s *authAppServiceImpl) record(ctx context.Context, event *models.AuditEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Warn(ctx, "failed to record audit event", logger.Err(err), logger.String("action", string(event.Action)))
	}
}
