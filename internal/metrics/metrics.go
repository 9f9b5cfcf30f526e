package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the portal. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	FlowSteps       *prometheus.CounterVec
	TokenExchanges  *prometheus.CounterVec
	TokenRefreshes  *prometheus.CounterVec
	SessionsExpired prometheus.Counter
	RateLimited     prometheus.Counter
}

// New creates and registers all Prometheus metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FlowSteps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_portal_flow_steps_total",
			Help: "Total number of sign-in flow steps by step and outcome",
		}, []string{"step", "outcome"}),
		TokenExchanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_portal_token_exchanges_total",
			Help: "Total number of authorization code exchanges by result",
		}, []string{"result"}),
		TokenRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_portal_token_refreshes_total",
			Help: "Total number of refresh token grants by result",
		}, []string{"result"}),
		SessionsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "auth_portal_sessions_expired_total",
			Help: "Total number of sessions cleared after an unrecoverable 401",
		}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "auth_portal_login_rate_limited_total",
			Help: "Total number of sign-in attempts rejected by the rate limiter",
		}),
	}
}

func (m *Metrics) IncrementFlowStep(step, outcome string) {
	if m == nil {
		return
	}
	m.FlowSteps.WithLabelValues(step, outcome).Inc()
}

func (m *Metrics) IncrementTokenExchange(result string) {
	if m == nil {
		return
	}
	m.TokenExchanges.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementTokenRefresh(result string) {
	if m == nil {
		return
	}
	m.TokenRefreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementSessionsExpired() {
	if m == nil {
		return
	}
	m.SessionsExpired.Inc()
}

func (m *Metrics) IncrementRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}
