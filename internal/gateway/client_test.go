package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"auth-portal/internal/device"
	"auth-portal/internal/gateway"
	"auth-portal/internal/models"
	"auth-portal/internal/session"
	"auth-portal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const testDevice = "2f1d8c1e-6a7b-4a8e-9f54-1a2b3c4d5e6f"

// fakeBackend is a scripted authorization server.
type fakeBackend struct {
	mu            sync.Mutex
	validAccess   string
	refreshResult string
	refreshCalls  int
	meStatus      []int
	seen          []*http.Request
	lastForm      map[string]string
	grantDevice   map[string]string
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		_ = r.ParseForm()
		f.lastForm = map[string]string{}
		if f.grantDevice == nil {
			f.grantDevice = map[string]string{}
		}
		f.grantDevice[r.PostForm.Get("grant_type")] = r.Header.Get(device.HeaderName)
		for k := range r.PostForm {
			f.lastForm[k] = r.PostForm.Get(k)
		}
		if r.PostForm.Get("grant_type") == "refresh_token" {
			f.refreshCalls++
			if f.refreshResult == "" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"refresh token revoked"}`))
				return
			}
			f.validAccess = f.refreshResult
			writeJSON(w, map[string]interface{}{
				"access_token":  f.refreshResult,
				"refresh_token": "refresh-2",
				"token_type":    "bearer",
				"expires_in":    3600,
			})
			return
		}
		writeJSON(w, map[string]interface{}{
			"access_token":  "access-from-code",
			"refresh_token": "refresh-from-code",
			"token_type":    "bearer",
			"expires_in":    3600,
			"id_token":      "id-token",
		})
	})
	mux.HandleFunc("/api/v1/users/me", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.seen = append(f.seen, r.Clone(context.Background()))
		status := http.StatusOK
		if len(f.meStatus) > 0 {
			status, f.meStatus = f.meStatus[0], f.meStatus[1:]
		} else if r.Header.Get("Authorization") != "Bearer "+f.validAccess {
			status = http.StatusUnauthorized
		}
		f.mu.Unlock()
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"detail":"Could not validate credentials"}`))
			return
		}
		writeJSON(w, models.User{ID: "u-1", Username: "alice", Email: "alice@example.com"})
	})
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body models.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch {
		case body.Password != "correct":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Incorrect username or password"}`))
		case body.TOTPToken == "":
			writeJSON(w, models.LoginResponse{RequiresMFA: true, Message: "TOTP verification required"})
		default:
			writeJSON(w, models.LoginResponse{AccessToken: "a", TokenType: "bearer"})
		}
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func setup(t *testing.T, f *fakeBackend) (*gateway.Client, *gateway.TokenClient, *session.Store) {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	tokens := gateway.NewTokenClient(srv.URL, "laaa-dashboard", "http://portal.test/callback", srv.Client())
	client := gateway.NewClient(srv.URL, srv.Client(), tokens, gateway.DefaultRefreshPolicy, nil, zap.NewNop())
	store := session.NewStore(session.NewMemoryKV(), time.Hour, 24*time.Hour)
	return client, tokens, store
}

func deviceCtx() context.Context {
	return device.WithID(context.Background(), testDevice)
}

func TestDo_AttachesHeaders(t *testing.T) {
	f := &fakeBackend{validAccess: "access-1"}
	client, _, store := setup(t, f)
	store.SetTokens("access-1", "refresh-1")

	user, err := client.CurrentUser(deviceCtx(), store)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	require.Len(t, f.seen, 1)
	assert.Equal(t, "Bearer access-1", f.seen[0].Header.Get("Authorization"))
	assert.Equal(t, testDevice, f.seen[0].Header.Get("X-Device-ID"))
}

func TestDo_NoBearerAfterLogout(t *testing.T) {
	f := &fakeBackend{validAccess: "access-1", meStatus: []int{http.StatusOK}}
	client, _, store := setup(t, f)
	store.SetTokens("access-1", "refresh-1")
	store.ClearTokens()

	_, err := client.CurrentUser(deviceCtx(), store)
	require.NoError(t, err)

	require.Len(t, f.seen, 1)
	assert.Empty(t, f.seen[0].Header.Get("Authorization"))
	assert.Equal(t, testDevice, f.seen[0].Header.Get("X-Device-ID"))
}

func TestDo_RefreshesOnceAndRetries(t *testing.T) {
	f := &fakeBackend{validAccess: "access-1", refreshResult: "access-2"}
	client, _, store := setup(t, f)
	store.SetTokens("stale-access", "refresh-1")

	user, err := client.CurrentUser(deviceCtx(), store)
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)

	assert.Equal(t, 1, f.refreshCalls)
	assert.Len(t, f.seen, 2)
	assert.Equal(t, "Bearer access-2", f.seen[1].Header.Get("Authorization"))
	assert.Equal(t, "access-2", store.AccessToken())
	assert.Equal(t, "refresh-2", store.RefreshToken())
	assert.Equal(t, "laaa-dashboard", f.lastForm["client_id"])
	assert.Equal(t, "refresh-1", f.lastForm["refresh_token"])
}

func TestDo_SecondUnauthorizedClearsSession(t *testing.T) {
	f := &fakeBackend{
		refreshResult: "access-2",
		meStatus:      []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusOK},
	}
	client, _, store := setup(t, f)
	store.SetTokens("access-1", "refresh-1")

	_, err := client.CurrentUser(deviceCtx(), store)
	assert.ErrorIs(t, err, errors.ErrSessionExpired)

	assert.Equal(t, 1, f.refreshCalls, "exactly one refresh")
	assert.Len(t, f.seen, 2, "exactly one retry")
	assert.False(t, store.IsAuthenticated())
	assert.Empty(t, store.RefreshToken())
}

func TestDo_RefreshFailureClearsSession(t *testing.T) {
	f := &fakeBackend{validAccess: "access-1"}
	client, _, store := setup(t, f)
	store.SetTokens("stale", "revoked")

	_, err := client.CurrentUser(deviceCtx(), store)
	assert.ErrorIs(t, err, errors.ErrSessionExpired)
	assert.Equal(t, 1, f.refreshCalls)
	assert.Len(t, f.seen, 1, "no retry without a new token")
	assert.False(t, store.IsAuthenticated())
}

func TestDo_NoRefreshTokenClearsSession(t *testing.T) {
	f := &fakeBackend{validAccess: "access-1", refreshResult: "access-2"}
	client, _, store := setup(t, f)
	store.SetTokens("stale", "")

	_, err := client.CurrentUser(deviceCtx(), store)
	assert.ErrorIs(t, err, errors.ErrSessionExpired)
	assert.Equal(t, 0, f.refreshCalls)
	assert.False(t, store.IsAuthenticated())
}

func TestDo_ZeroAttemptsNeverRefreshes(t *testing.T) {
	f := &fakeBackend{validAccess: "access-1", refreshResult: "access-2"}
	srv := httptest.NewServer(f.handler())
	defer srv.Close()
	tokens := gateway.NewTokenClient(srv.URL, "laaa-dashboard", "", srv.Client())
	client := gateway.NewClient(srv.URL, srv.Client(), tokens, gateway.RefreshPolicy{MaxAttempts: 0}, nil, zap.NewNop())
	store := session.NewStore(session.NewMemoryKV(), time.Hour, 24*time.Hour)
	store.SetTokens("stale", "refresh-1")

	_, err := client.CurrentUser(deviceCtx(), store)
	assert.ErrorIs(t, err, errors.ErrSessionExpired)
	assert.Equal(t, 0, f.refreshCalls)
}

func TestLogin_AnonymousUnauthorizedIsAPIError(t *testing.T) {
	f := &fakeBackend{}
	client, _, _ := setup(t, f)

	_, err := client.Login(deviceCtx(), "alice", "wrong", "")
	var apiErr *gateway.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Incorrect username or password", apiErr.Detail)
	assert.Equal(t, 0, f.refreshCalls)

	resp, err := client.Login(deviceCtx(), "alice", "correct", "")
	require.NoError(t, err)
	assert.True(t, resp.RequiresMFA)

	resp, err = client.Login(deviceCtx(), "alice", "correct", "123456")
	require.NoError(t, err)
	assert.False(t, resp.RequiresMFA)
}

func TestTokenClient_Exchange(t *testing.T) {
	f := &fakeBackend{}
	_, tokens, _ := setup(t, f)

	tok, err := tokens.Exchange(context.Background(), "code-1", "verifier-1")
	require.NoError(t, err)
	assert.Equal(t, "access-from-code", tok.AccessToken)
	assert.Equal(t, "refresh-from-code", tok.RefreshToken)
	assert.Equal(t, "id-token", tok.IDToken)

	assert.Equal(t, "authorization_code", f.lastForm["grant_type"])
	assert.Equal(t, "code-1", f.lastForm["code"])
	assert.Equal(t, "verifier-1", f.lastForm["code_verifier"])
	assert.Equal(t, "http://portal.test/callback", f.lastForm["redirect_uri"])
	assert.Equal(t, "laaa-dashboard", f.lastForm["client_id"])
}

func TestTokenClient_GrantsCarryDeviceID(t *testing.T) {
	f := &fakeBackend{refreshResult: "access-2"}
	_, tokens, _ := setup(t, f)

	_, err := tokens.Exchange(deviceCtx(), "code-1", "verifier-1")
	require.NoError(t, err)
	_, err = tokens.Refresh(deviceCtx(), "refresh-1")
	require.NoError(t, err)

	assert.Equal(t, testDevice, f.grantDevice["authorization_code"])
	assert.Equal(t, testDevice, f.grantDevice["refresh_token"])
}

func TestTokenClient_ExchangeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code already used"}`))
	}))
	defer srv.Close()
	tokens := gateway.NewTokenClient(srv.URL, "laaa-dashboard", "http://portal.test/callback", srv.Client())

	_, err := tokens.Exchange(context.Background(), "used", "v")
	var retrieveErr *oauth2.RetrieveError
	require.ErrorAs(t, err, &retrieveErr)
	assert.Equal(t, "invalid_grant", retrieveErr.ErrorCode)
}
