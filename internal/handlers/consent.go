package handlers

import (
	"net/http"

	"auth-portal/internal/authz"
	"auth-portal/internal/models"
	"auth-portal/pkg/errors"
)

type consentView struct {
	Title       string
	Flow        string
	Client      *models.ClientApplication
	Scopes      []authz.Scope
	Username    string
	RedirectURI string
}

// HandleConsentPage handles GET /consent?flow=...
func (h *PageHandler) HandleConsentPage(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.authContext(w, r)
	if !ok {
		return
	}

	token := r.URL.Query().Get("flow")
	if token == "" {
		h.renderError(w, r, errors.ErrFlowExpired)
		return
	}

	view, err := h.flow.Consent(r.Context(), ac.Store(), token)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if view.Redirect != "" {
		http.Redirect(w, r, view.Redirect, http.StatusSeeOther)
		return
	}

	h.render(w, http.StatusOK, "consent.html", consentView{
		Title:       "Authorize " + view.Client.Name,
		Flow:        view.Flow,
		Client:      view.Client,
		Scopes:      view.Scopes,
		Username:    view.Username,
		RedirectURI: view.Request.RedirectURI,
	})
}

// HandleConsent handles POST /consent. The browser is sent wherever the
// authorization server redirected, including on deny.
func (h *PageHandler) HandleConsent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, errors.Wrap(err, errors.ErrInvalidRequest))
		return
	}

	token := r.PostForm.Get("flow")
	if token == "" {
		h.renderError(w, r, errors.ErrFlowExpired)
		return
	}

	var allow bool
	switch r.PostForm.Get("decision") {
	case "allow":
		allow = true
	case "deny":
	default:
		h.renderError(w, r, errors.WithMessage(errors.ErrInvalidRequest, "Choose allow or deny"))
		return
	}

	decision, err := h.flow.Decide(r.Context(), token, allow)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if decision.Location == "" {
		h.renderError(w, r, errors.ErrUpstream)
		return
	}
	http.Redirect(w, r, decision.Location, http.StatusSeeOther)
}
