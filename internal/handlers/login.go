package handlers

import (
	stderrors "errors"
	"net/http"
	"net/url"

	"auth-portal/internal/authz"
	"auth-portal/internal/flow"
	"auth-portal/pkg/errors"
)

type loginView struct {
	Title    string
	Error    string
	Username string
	ClientID string
	MFA      bool
	Flow     string
	// Hidden carries the authorization request through the form post.
	Hidden url.Values
}

// HandleLoginPage handles GET /login. Authorization parameters in the URL
// make this a third-party sign-in; without them it is a dashboard sign-in.
func (h *PageHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.authContext(w, r)
	if !ok {
		return
	}

	view := loginView{Title: "Sign in"}
	q := r.URL.Query()
	if authz.Present(q) {
		req, err := authz.Parse(q)
		if err != nil {
			h.renderError(w, r, err)
			return
		}
		view.Hidden = req.Values()
		view.ClientID = req.ClientID
	} else if ac.User() != nil {
		http.Redirect(w, r, DashboardPath, http.StatusSeeOther)
		return
	}

	h.render(w, http.StatusOK, "login.html", view)
}

// HandleLogin handles POST /login, both the credentials form and the
// one-time code form.
func (h *PageHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.authContext(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, errors.Wrap(err, errors.ErrInvalidRequest))
		return
	}

	form := r.PostForm
	in := flow.LoginInput{
		Username: form.Get("username"),
		Password: form.Get("password"),
		TOTP:     form.Get("totp"),
		Flow:     form.Get("flow"),
	}
	view := loginView{Title: "Sign in", Username: in.Username}

	if in.Flow == "" && authz.Present(form) {
		req, err := authz.Parse(form)
		if err != nil {
			h.renderError(w, r, err)
			return
		}
		in.Request = req
		view.Hidden = req.Values()
		view.ClientID = req.ClientID
	}

	result, err := h.flow.Login(r.Context(), ac.Store(), in)
	if result != nil && result.State == flow.MfaRequired {
		view.Title = "Verify"
		view.MFA = true
		view.Flow = result.Flow
		view.Username = result.Username
		view.Hidden = nil
	}

	if err != nil {
		if !retryable(err) {
			h.renderError(w, r, err)
			return
		}
		se := errors.As(err)
		view.Error = se.Message
		h.render(w, se.Status, "login.html", view)
		return
	}

	if view.MFA {
		h.render(w, http.StatusOK, "login.html", view)
		return
	}
	http.Redirect(w, r, result.ConsentURL, http.StatusSeeOther)
}

// retryable errors re-render the form they came from.
func retryable(err error) bool {
	for _, target := range []*errors.ServiceError{
		errors.ErrInvalidCredentials,
		errors.ErrMFARequired,
		errors.ErrRateLimitExceeded,
		errors.ErrUpstream,
	} {
		if stderrors.Is(err, target) {
			return true
		}
	}
	return false
}
