package middleware

import (
	"net/http"
	"time"

	"auth-portal/internal/authctx"
	"auth-portal/internal/device"
	"auth-portal/internal/session"

	"go.uber.org/zap"
)

// SessionConfig controls how the per-request session is built.
type SessionConfig struct {
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	CookieSecure bool
}

// SessionMiddleware rebuilds the browser session from its cookies, makes
// sure the device id exists, and puts an initialised auth context on the
// request. The context is disposed when the request ends.
func SessionMiddleware(source authctx.UserSource, cfg SessionConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			kv := session.NewCookieKV(w, r, cfg.CookieSecure)
			ctx := device.WithID(r.Context(), device.Identity(kv))

			ac := authctx.New(source, session.NewStore(kv, cfg.AccessTTL, cfg.RefreshTTL), logger)
			defer ac.Dispose()

			if err := ac.Init(ctx); err != nil {
				// Pages still render signed out; the backend may be down.
				logger.Warn("Failed to initialise session", zap.Error(err))
			}

			next.ServeHTTP(w, r.WithContext(authctx.WithContext(ctx, ac)))
		})
	}
}
