package handlers

import (
	"encoding/json"
	"net/http"

	"auth-portal/internal/authctx"
	"auth-portal/internal/device"
	"auth-portal/internal/models"
	"auth-portal/pkg/errors"

	"go.uber.org/zap"
)

// SessionHandler reports the browser session as JSON for scripts on the
// portal's own pages.
type SessionHandler struct {
	logger *zap.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(logger *zap.Logger) *SessionHandler {
	return &SessionHandler{logger: logger}
}

// HandleSession handles GET /api/session
// @Summary     Current browser session
// @Description Returns whether the browser is signed in and, if so, the user
// @Tags        session
// @Produce     application/json
// @Success     200 {object} models.SessionResponse
// @Failure     500 {object} map[string]string
// @Router      /api/session [get]
func (h *SessionHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	ac, ok := authctx.FromContext(r.Context())
	if !ok {
		h.logger.Error("Auth context missing from request", zap.String("path", r.URL.Path))
		h.sendError(w, errors.ErrInternalServer)
		return
	}

	user := ac.User()
	h.sendResponse(w, http.StatusOK, &models.SessionResponse{
		Authenticated: user != nil,
		User:          user,
		DeviceID:      device.FromContext(r.Context()),
	})
}

func (h *SessionHandler) sendError(w http.ResponseWriter, err *errors.ServiceError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":             err.Code,
		"error_description": err.Message,
	})
}

func (h *SessionHandler) sendResponse(w http.ResponseWriter, status int, data *models.SessionResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
