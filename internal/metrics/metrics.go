// Package metrics holds the prometheus instruments of the auth flow.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "acosmibot_api"

// Auth counts login and session outcomes. A nil *Auth is a no-op.
type Auth struct {
	logins         *prometheus.CounterVec
	profileRetries prometheus.Counter
	sessions       *prometheus.CounterVec
}

// NewAuth creates the instruments and registers them with reg.
func NewAuth(reg prometheus.Registerer) (*Auth, error) {
	m := &Auth{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Completed login callbacks by outcome.",
		}, []string{"outcome"}),
		profileRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discord",
			Name:      "profile_retries_total",
			Help:      "Retried Discord profile fetches.",
		}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "session_verifications_total",
			Help:      "Session token verifications by result.",
		}, []string{"result"}),
	}

	for _, c := range []prometheus.Collector{m.logins, m.profileRetries, m.sessions} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register auth metrics: %w", err)
		}
	}
	return m, nil
}

// LoginOutcome records one finished callback.
func (m *Auth) LoginOutcome(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

// ProfileRetry records one retried profile fetch.
func (m *Auth) ProfileRetry() {
	if m == nil {
		return
	}
	m.profileRetries.Inc()
}

// SessionVerified records one session check.
func (m *Auth) SessionVerified(result string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(result).Inc()
}
