package flow_test

import (
	"context"
	"time"

	"auth-portal/internal/models"
	"auth-portal/internal/session"

	"github.com/stretchr/testify/mock"
)

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Login(ctx context.Context, username, password, totp string) (*models.LoginResponse, error) {
	args := m.Called(ctx, username, password, totp)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LoginResponse), args.Error(1)
}

func (m *MockBackend) ClientInfo(ctx context.Context, sess *session.Store, clientID string) (*models.ClientApplication, error) {
	args := m.Called(ctx, sess, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ClientApplication), args.Error(1)
}

func (m *MockBackend) Authorize(ctx context.Context, form models.AuthorizeForm) (string, error) {
	args := m.Called(ctx, form)
	return args.String(0), args.Error(1)
}

type MockExchanger struct {
	mock.Mock
}

func (m *MockExchanger) Exchange(ctx context.Context, code, verifier string) (*models.TokenResponse, error) {
	args := m.Called(ctx, code, verifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TokenResponse), args.Error(1)
}

// storeStarter writes tokens the way the auth context does.
type storeStarter struct {
	store *session.Store
	calls int
}

func (s *storeStarter) Login(_ context.Context, access, refresh string) error {
	s.calls++
	s.store.SetTokens(access, refresh)
	return nil
}

// fakeFlowCache is an in-memory FlowCache.
type fakeFlowCache struct {
	data map[string][]byte
}

func (f *fakeFlowCache) StoreFlow(_ context.Context, id string, payload []byte, _ time.Duration) error {
	f.data[id] = payload
	return nil
}

func (f *fakeFlowCache) PeekFlow(_ context.Context, id string) ([]byte, bool, error) {
	d, ok := f.data[id]
	return d, ok, nil
}

func (f *fakeFlowCache) ConsumeFlow(_ context.Context, id string) ([]byte, bool, error) {
	d, ok := f.data[id]
	delete(f.data, id)
	return d, ok, nil
}
