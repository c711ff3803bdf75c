package crypto

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/domain/service"
	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
	"github.com/turtacn/credcore/pkg/logger"
)

// JWTManager mints access and refresh tokens and verifies access tokens
// against the keys published by a KeyringHolder.
type JWTManager struct {
	holder  *KeyringHolder
	ledger  *service.RefreshTokenLedger
	log     logger.Logger
	now     func() time.Time
	entropy io.Reader
}

// JWTOption configures a JWTManager.
type JWTOption func(*JWTManager)

// WithClock overrides the time source used for iat, exp and verification.
func WithClock(now func() time.Time) JWTOption {
	return func(m *JWTManager) { m.now = now }
}

// WithEntropy overrides the random source for jti and refresh token values.
func WithEntropy(r io.Reader) JWTOption {
	return func(m *JWTManager) { m.entropy = r }
}

// NewJWTManager creates a new JWTManager.
func NewJWTManager(holder *KeyringHolder, ledger *service.RefreshTokenLedger, log logger.Logger, opts ...JWTOption) *JWTManager {
	m := &JWTManager{
		holder:  holder,
		ledger:  ledger,
		log:     log.WithComponent("jwt_manager"),
		now:     time.Now,
		entropy: rand.Reader,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ service.TokenIssuer = (*JWTManager)(nil)

// CreateAccessToken signs an access token for subject with the active key.
func (m *JWTManager) CreateAccessToken(ctx context.Context, subject string, roles []string, attributes map[string]string, ttl time.Duration) (string, *models.AccessTokenClaims, error) {
	if subject == "" {
		return "", nil, errors.ErrInvalidArgument.WithMessage("subject is required")
	}
	if ttl <= 0 {
		return "", nil, errors.ErrInvalidArgument.WithMessage("access token ttl must be positive")
	}
	normalized, err := models.NormalizeRoles(roles)
	if err != nil {
		return "", nil, err
	}
	if err := models.ValidateAttributes(attributes); err != nil {
		return "", nil, err
	}

	key, err := m.holder.Current().signingKey()
	if err != nil {
		m.log.Error(ctx, "active signing key is unavailable", err)
		return "", nil, err
	}

	jti, err := uuid.NewRandomFromReader(m.entropy)
	if err != nil {
		return "", nil, errors.ErrInternal.WithMessage("failed to generate jti").WithCause(err)
	}

	now := m.now()
	claims := &models.AccessTokenClaims{
		Type:       string(constants.TokenTypeAccess),
		Roles:      normalized,
		Attributes: copyAttributes(attributes),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti.String(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	jwtToken := jwt.NewWithClaims(signingMethod(key.alg), claims)
	jwtToken.Header["kid"] = key.kid

	signed, err := jwtToken.SignedString(key.signKey)
	if err != nil {
		m.log.Error(ctx, "failed to sign access token", err, logger.String("kid", key.kid))
		return "", nil, errors.ErrSigningKeyUnavailable.WithCause(err)
	}
	return signed, claims, nil
}

// DecodeAndVerify parses tokenString, resolves its kid among the keys that are
// active or retired within grace, and checks signature, expiry and token type.
// The returned error is one of ErrMalformedToken, ErrUnknownSigningKey,
// ErrInvalidSignature or ErrExpiredToken.
func (m *JWTManager) DecodeAndVerify(ctx context.Context, tokenString string) (*models.AccessTokenClaims, error) {
	ring := m.holder.Current()
	now := m.now()

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{constants.AlgRS256, constants.AlgHS256}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	claims := &models.AccessTokenClaims{}
	_, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.ErrMalformedToken.WithMessage("token header has no kid")
		}
		key, ok := ring.verificationKey(kid, now)
		if !ok {
			return nil, errors.ErrUnknownSigningKey.WithMetadata("kid", kid)
		}
		if token.Method.Alg() != key.alg {
			return nil, errors.ErrInvalidSignature.WithMessage("algorithm does not match key %q", kid)
		}
		return key.verifyKey, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	if claims.Type != string(constants.TokenTypeAccess) || claims.Subject == "" || claims.ID == "" {
		return nil, errors.ErrMalformedToken.WithMessage("token is not an access token")
	}
	return claims, nil
}

// CreateRefreshToken generates an opaque refresh token, stores its hash through
// the ledger and returns the raw value. The raw value is never logged.
func (m *JWTManager) CreateRefreshToken(ctx context.Context, userID string, ttl time.Duration) (string, *models.RefreshToken, error) {
	buf := make([]byte, constants.RefreshTokenEntropyBytes)
	if _, err := io.ReadFull(m.entropy, buf); err != nil {
		return "", nil, errors.ErrInternal.WithMessage("failed to read entropy").WithCause(err)
	}
	raw := base64.RawURLEncoding.EncodeToString(buf)

	record, err := m.ledger.CreateFromJTI(ctx, raw, userID, ttl)
	if err != nil {
		return "", nil, err
	}
	return raw, record, nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, errors.ErrMalformedToken), errors.Is(err, jwt.ErrTokenMalformed):
		return errors.ErrMalformedToken.WithCause(err)
	case errors.Is(err, errors.ErrUnknownSigningKey):
		return errors.ErrUnknownSigningKey.WithCause(err)
	case errors.Is(err, errors.ErrInvalidSignature),
		errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return errors.ErrInvalidSignature.WithCause(err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return errors.ErrExpiredToken.WithCause(err)
	default:
		return errors.ErrMalformedToken.WithCause(err)
	}
}

func signingMethod(alg string) jwt.SigningMethod {
	if alg == constants.AlgHS256 {
		return jwt.SigningMethodHS256
	}
	return jwt.SigningMethodRS256
}

func copyAttributes(attrs map[string]string) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
