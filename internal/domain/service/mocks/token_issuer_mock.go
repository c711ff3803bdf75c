package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/turtacn/credcore/internal/domain/models"
)

type MockTokenIssuer struct {
	mock.Mock
}

func (m *MockTokenIssuer) CreateAccessToken(ctx context.Context, subject string, roles []string, attributes map[string]string, ttl time.Duration) (string, *models.AccessTokenClaims, error) {
	args := m.Called(ctx, subject, roles, attributes, ttl)
	if args.Get(1) == nil {
		return args.String(0), nil, args.Error(2)
	}
	return args.String(0), args.Get(1).(*models.AccessTokenClaims), args.Error(2)
}

func (m *MockTokenIssuer) DecodeAndVerify(ctx context.Context, token string) (*models.AccessTokenClaims, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AccessTokenClaims), args.Error(1)
}

func (m *MockTokenIssuer) CreateRefreshToken(ctx context.Context, userID string, ttl time.Duration) (string, *models.RefreshToken, error) {
	args := m.Called(ctx, userID, ttl)
	if args.Get(1) == nil {
		return args.String(0), nil, args.Error(2)
	}
	return args.String(0), args.Get(1).(*models.RefreshToken), args.Error(2)
}
