package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"auth-portal/internal/device"
	"auth-portal/internal/handlers"
	"auth-portal/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHandleSession(t *testing.T) {
	h := handlers.NewSessionHandler(zap.NewNop())

	t.Run("SignedIn", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
		req = req.WithContext(device.WithID(req.Context(), "dev-1"))
		h.HandleSession(rr, withSession(t, rr, req, "access-1"))

		require.Equal(t, http.StatusOK, rr.Code)
		var resp models.SessionResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.True(t, resp.Authenticated)
		require.NotNil(t, resp.User)
		assert.Equal(t, "alice", resp.User.Username)
		assert.Equal(t, "dev-1", resp.DeviceID)
	})

	t.Run("SignedOut", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.HandleSession(rr, withSession(t, rr, httptest.NewRequest(http.MethodGet, "/api/session", nil), ""))

		var resp models.SessionResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.False(t, resp.Authenticated)
		assert.Nil(t, resp.User)
	})

	t.Run("NoContext", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.HandleSession(rr, httptest.NewRequest(http.MethodGet, "/api/session", nil))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Contains(t, rr.Body.String(), `"error":"server_error"`)
	})
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHandleHealth(t *testing.T) {
	rr := httptest.NewRecorder()
	handlers.NewHealthHandler(nil, zap.NewNop()).HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())

	rr = httptest.NewRecorder()
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })
	handlers.NewHealthHandler(down, zap.NewNop()).HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
