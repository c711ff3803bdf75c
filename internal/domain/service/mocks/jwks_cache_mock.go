package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/turtacn/credcore/internal/domain/models"
)

type MockJWKSCache struct {
	mock.Mock
}

func (m *MockJWKSCache) Get(ctx context.Context) (*models.JWKS, bool, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.JWKS), args.Bool(1), args.Error(2)
}

func (m *MockJWKSCache) Set(ctx context.Context, jwks *models.JWKS, ttl time.Duration) error {
	args := m.Called(ctx, jwks, ttl)
	return args.Error(0)
}

func (m *MockJWKSCache) Invalidate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
