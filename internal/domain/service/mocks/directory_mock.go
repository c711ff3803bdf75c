package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/turtacn/credcore/internal/domain/models"
)

type MockCredentialVerifier struct {
	mock.Mock
}

func (m *MockCredentialVerifier) Verify(ctx context.Context, username, password string) (string, error) {
	args := m.Called(ctx, username, password)
	return args.String(0), args.Error(1)
}

type MockSubjectDirectory struct {
	mock.Mock
}

func (m *MockSubjectDirectory) Lookup(ctx context.Context, subjectID string) (*models.Subject, error) {
	args := m.Called(ctx, subjectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subject), args.Error(1)
}
