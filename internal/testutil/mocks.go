package testutil

import (
	"context"

	"github.com/leansocial/shell/internal/identity"
	"github.com/leansocial/shell/internal/session"
	"github.com/stretchr/testify/mock"
)

// MockIdentityClient is a testify mock of identity.Client
type MockIdentityClient struct {
	mock.Mock
}

func (m *MockIdentityClient) GetSession(ctx context.Context) (*session.Snapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Snapshot), args.Error(1)
}

func (m *MockIdentityClient) OnSessionChange(handler func(*session.Snapshot)) identity.Subscription {
	args := m.Called(handler)
	return args.Get(0).(identity.Subscription)
}

func (m *MockIdentityClient) SignInExternal(ctx context.Context, provider, redirectTarget string) (string, error) {
	args := m.Called(ctx, provider, redirectTarget)
	return args.String(0), args.Error(1)
}

func (m *MockIdentityClient) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockSubscription struct {
	mock.Mock
}

func (m *MockSubscription) Unsubscribe() {
	m.Called()
}
