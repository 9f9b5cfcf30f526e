package handlers

import (
	"net/http"

	"auth-portal/internal/authctx"
	"auth-portal/internal/models"
)

type dashboardView struct {
	Title string
	User  *models.User
}

// HandleDashboard handles GET /dashboard
func (h *PageHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.authContext(w, r)
	if !ok {
		return
	}

	user := ac.User()
	if user == nil {
		http.Redirect(w, r, authctx.LoginPath, http.StatusSeeOther)
		return
	}
	h.render(w, http.StatusOK, "dashboard.html", dashboardView{Title: "Dashboard", User: user})
}

// HandleLogout handles POST /logout. It is a full navigation so no page of
// the signed-in session stays in the history as live.
func (h *PageHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.authContext(w, r)
	if !ok {
		return
	}
	http.Redirect(w, r, ac.Logout(), http.StatusSeeOther)
}
