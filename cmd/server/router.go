package main

import (
	"net/http"

	"auth-portal/internal/authctx"
	"auth-portal/internal/config"
	"auth-portal/internal/handlers"
	"auth-portal/internal/metrics"
	"auth-portal/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// Routes are the handlers and collaborators the router wires together.
type Routes struct {
	Pages    *handlers.PageHandler
	Sessions *handlers.SessionHandler
	Health   *handlers.HealthHandler
	Users    authctx.UserSource
	Limiter  middleware.RateLimiter
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
}

// SetupRouter configures and returns the HTTP router with all routes and middleware
func SetupRouter(rt Routes, cfg *config.Config, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()

	// Add logging middleware
	router.Use(middleware.LoggingMiddleware(logger))

	// Health check
	router.HandleFunc("/health", rt.Health.HandleHealth).Methods("GET")

	router.Handle("/metrics", promhttp.HandlerFor(rt.Registry, promhttp.HandlerOpts{})).Methods("GET")

	// Swagger documentation
	router.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	// Pages get a browser session rebuilt from cookies.
	withSession := middleware.SessionMiddleware(rt.Users, middleware.SessionConfig{
		AccessTTL:    cfg.AccessTokenTTL,
		RefreshTTL:   cfg.RefreshTokenTTL,
		CookieSecure: cfg.CookieSecure,
	}, logger)

	// Limited logins are turned away before their session is rebuilt.
	limitLogin := middleware.RateLimitMiddleware(rt.Limiter, rt.Metrics, logger, cfg.LoginRateLimit, cfg.LoginRateWindow)
	router.Handle("/login", limitLogin(withSession(http.HandlerFunc(rt.Pages.HandleLogin)))).Methods("POST")

	pages := router.NewRoute().Subrouter()
	pages.Use(withSession)

	pages.Handle("/", http.RedirectHandler(handlers.DashboardPath, http.StatusSeeOther)).Methods("GET")
	pages.HandleFunc("/login", rt.Pages.HandleLoginPage).Methods("GET")
	pages.HandleFunc("/consent", rt.Pages.HandleConsentPage).Methods("GET")
	pages.HandleFunc("/consent", rt.Pages.HandleConsent).Methods("POST")
	pages.HandleFunc("/callback", rt.Pages.HandleCallback).Methods("GET")
	pages.HandleFunc("/dashboard", rt.Pages.HandleDashboard).Methods("GET")
	pages.HandleFunc("/logout", rt.Pages.HandleLogout).Methods("POST")
	pages.HandleFunc("/api/session", rt.Sessions.HandleSession).Methods("GET")

	return router
}
