package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Outcome labels shared by the session counters.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeCancelled = "cancelled"
	OutcomeNoop      = "noop"
)

// SessionMetrics holds the counters the session manager reports to.
// A nil *SessionMetrics is valid and records nothing.
type SessionMetrics struct {
	SignInsTotal      *prometheus.CounterVec
	SignUpsTotal      *prometheus.CounterVec
	SignOutsTotal     *prometheus.CounterVec
	RestorationsTotal *prometheus.CounterVec
	SignedInGauge     prometheus.Gauge
}

// NewSessionMetrics creates the session metrics and registers them on reg.
// Registration failures are logged, matching how the rest of the service treats metrics.
func NewSessionMetrics(reg prometheus.Registerer) *SessionMetrics {
	m := &SessionMetrics{
		SignInsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recovery_session_sign_ins_total",
			Help: "Social sign-in attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		SignUpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recovery_session_sign_ups_total",
			Help: "Email sign-up attempts by outcome.",
		}, []string{"outcome"}),
		SignOutsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recovery_session_sign_outs_total",
			Help: "Sign-out attempts by outcome.",
		}, []string{"outcome"}),
		RestorationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recovery_session_restorations_total",
			Help: "Ambient identity notifications applied, by result.",
		}, []string{"result"}),
		SignedInGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recovery_session_signed_in",
			Help: "1 while a session is published, 0 otherwise.",
		}),
	}

	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, session metrics are not registered.")
		return m
	}
	for _, c := range []prometheus.Collector{m.SignInsTotal, m.SignUpsTotal, m.SignOutsTotal, m.RestorationsTotal, m.SignedInGauge} {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("Failed to register session metric")
		}
	}
	return m
}

func (m *SessionMetrics) SignIn(provider, outcome string) {
	if m == nil {
		return
	}
	m.SignInsTotal.WithLabelValues(provider, outcome).Inc()
}

func (m *SessionMetrics) SignUp(outcome string) {
	if m == nil {
		return
	}
	m.SignUpsTotal.WithLabelValues(outcome).Inc()
}

func (m *SessionMetrics) SignOut(outcome string) {
	if m == nil {
		return
	}
	m.SignOutsTotal.WithLabelValues(outcome).Inc()
}

// Restoration counts one applied notification; result is "identity", "none" or "fetch_error".
func (m *SessionMetrics) Restoration(result string) {
	if m == nil {
		return
	}
	m.RestorationsTotal.WithLabelValues(result).Inc()
}

func (m *SessionMetrics) SetSignedIn(signedIn bool) {
	if m == nil {
		return
	}
	if signedIn {
		m.SignedInGauge.Set(1)
		return
	}
	m.SignedInGauge.Set(0)
}
