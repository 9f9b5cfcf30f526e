package handlers

import (
	"bytes"
	"context"
	stderrors "errors"
	"net/http"
	"net/url"

	"auth-portal/internal/authctx"
	"auth-portal/internal/flow"
	"auth-portal/internal/session"
	"auth-portal/pkg/errors"

	"go.uber.org/zap"
)

// DashboardPath is where a signed-in browser lands.
const DashboardPath = "/dashboard"

// Flow is the sign-in orchestration the pages drive.
type Flow interface {
	Login(ctx context.Context, sess *session.Store, in flow.LoginInput) (*flow.LoginResult, error)
	Consent(ctx context.Context, sess *session.Store, flowToken string) (*flow.ConsentView, error)
	Decide(ctx context.Context, flowToken string, allow bool) (*flow.Decision, error)
	Callback(ctx context.Context, q url.Values, sess *session.Store, starter flow.SessionStarter) (*flow.CallbackResult, error)
}

// PageHandler serves the HTML pages of the sign-in flow.
type PageHandler struct {
	flow   Flow
	logger *zap.Logger
}

// NewPageHandler creates a new page handler
func NewPageHandler(f Flow, logger *zap.Logger) *PageHandler {
	return &PageHandler{
		flow:   f,
		logger: logger,
	}
}

type errorView struct {
	Title        string
	Heading      string
	Message      string
	Code         string
	RecoveryURL  string
	RecoveryText string
}

// authContext returns the request's auth context, writing a 500 when the
// session middleware did not run.
func (h *PageHandler) authContext(w http.ResponseWriter, r *http.Request) (*authctx.Context, bool) {
	ac, ok := authctx.FromContext(r.Context())
	if !ok {
		h.logger.Error("Auth context missing from request", zap.String("path", r.URL.Path))
		h.renderError(w, r, errors.ErrInternalServer)
		return nil, false
	}
	return ac, true
}

// renderError shows one message and one way out. An expired session is not
// rendered; the browser is sent back to sign in.
func (h *PageHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	if stderrors.Is(err, errors.ErrSessionExpired) {
		http.Redirect(w, r, authctx.LoginPath, http.StatusSeeOther)
		return
	}

	se := errors.As(err)
	if se.Status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}

	view := errorView{
		Title:        "Sign-in error",
		Heading:      "Something went wrong",
		Message:      se.Message,
		Code:         se.Code,
		RecoveryURL:  authctx.LoginPath,
		RecoveryText: "Return to sign in",
	}
	switch {
	case stderrors.Is(se, errors.ErrInvalidRequest):
		view.Heading = "Invalid authorization request"
	case stderrors.Is(se, errors.ErrFlowExpired), stderrors.Is(se, errors.ErrTokenExchangeFailed):
		view.Heading = "Sign-in could not be completed"
		view.RecoveryText = "Start again"
	case stderrors.Is(se, errors.ErrAccessDenied):
		view.Heading = "Access denied"
	}
	h.render(w, se.Status, "error.html", view)
}

// render buffers the page before the status line is written.
func (h *PageHandler) render(w http.ResponseWriter, status int, name string, data interface{}) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		h.logger.Error("Failed to render page", zap.String("template", name), zap.Error(err))
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
