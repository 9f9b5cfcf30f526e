package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"auth-portal/internal/authctx"
	"auth-portal/internal/flow"
	"auth-portal/internal/models"
	"auth-portal/internal/session"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockFlow struct {
	mock.Mock
}

func (m *MockFlow) Login(ctx context.Context, sess *session.Store, in flow.LoginInput) (*flow.LoginResult, error) {
	args := m.Called(ctx, sess, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*flow.LoginResult), args.Error(1)
}

func (m *MockFlow) Consent(ctx context.Context, sess *session.Store, flowToken string) (*flow.ConsentView, error) {
	args := m.Called(ctx, sess, flowToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*flow.ConsentView), args.Error(1)
}

func (m *MockFlow) Decide(ctx context.Context, flowToken string, allow bool) (*flow.Decision, error) {
	args := m.Called(ctx, flowToken, allow)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*flow.Decision), args.Error(1)
}

func (m *MockFlow) Callback(ctx context.Context, q url.Values, sess *session.Store, starter flow.SessionStarter) (*flow.CallbackResult, error) {
	args := m.Called(ctx, q, sess, starter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*flow.CallbackResult), args.Error(1)
}

// fakeUsers returns alice for any credentials.
type fakeUsers struct{}

func (fakeUsers) CurrentUser(_ context.Context, _ *session.Store) (*models.User, error) {
	return &models.User{ID: "u-1", Username: "alice", Email: "alice@example.com", TOTPEnabled: true}, nil
}

// withSession attaches an initialised auth context, signed in when access
// is non-empty.
func withSession(t *testing.T, rr *httptest.ResponseRecorder, req *http.Request, access string) *http.Request {
	t.Helper()
	if access != "" {
		req.AddCookie(&http.Cookie{Name: session.AccessTokenKey, Value: access})
		req.AddCookie(&http.Cookie{Name: session.RefreshTokenKey, Value: "refresh-" + access})
	}
	store := session.NewStore(session.NewCookieKV(rr, req, false), time.Hour, 24*time.Hour)
	ac := authctx.New(fakeUsers{}, store, zap.NewNop())
	require.NoError(t, ac.Init(req.Context()))
	return req.WithContext(authctx.WithContext(req.Context(), ac))
}
