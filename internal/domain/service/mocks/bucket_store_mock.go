package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockBucketStore struct {
	mock.Mock
}

func (m *MockBucketStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (bool, error) {
	args := m.Called(ctx, key, now, window, limit)
	return args.Bool(0), args.Error(1)
}

func (m *MockBucketStore) Reset(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockBucketStore) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
