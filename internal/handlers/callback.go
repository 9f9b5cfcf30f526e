package handlers

import (
	"net/http"
)

type callbackView struct {
	Title            string
	Code             string
	Error            string
	ErrorDescription string
	StateParam       string
	Duplicate        bool
}

// HandleCallback handles GET /callback, the redirect_uri of the dashboard
// client and the landing page for manual integrations.
func (h *PageHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.authContext(w, r)
	if !ok {
		return
	}

	result, err := h.flow.Callback(r.Context(), r.URL.Query(), ac.Store(), ac)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if result.Redirect != "" {
		http.Redirect(w, r, result.Redirect, http.StatusSeeOther)
		return
	}

	h.render(w, http.StatusOK, "callback.html", callbackView{
		Title:            "Authorization result",
		Code:             result.Code,
		Error:            result.Error,
		ErrorDescription: result.ErrorDescription,
		StateParam:       result.StateParam,
		Duplicate:        result.Duplicate,
	})
}
