package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Login outcome label values.
const (
	OutcomeSuccess     = "success"
	OutcomeBadPassword = "bad_password"
	OutcomeUnknown     = "unknown_email"
	OutcomeLocked      = "locked"
	OutcomeInactive    = "inactive"
)

// Metrics holds the auth flow counters exposed on /metrics.
type Metrics struct {
	logins        *prometheus.CounterVec
	registrations prometheus.Counter
	rotations     prometheus.Counter
	lockoutTrips  prometheus.Counter
	revocations   prometheus.Counter
}

// NewMetrics registers the auth counters with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		registrations: factory.NewCounter(prometheus.CounterOpts{
			Name: "auth_registrations_total",
			Help: "Successful account registrations.",
		}),
		rotations: factory.NewCounter(prometheus.CounterOpts{
			Name: "auth_refresh_rotations_total",
			Help: "Successful refresh token rotations.",
		}),
		lockoutTrips: factory.NewCounter(prometheus.CounterOpts{
			Name: "auth_lockout_trips_total",
			Help: "Accounts locked after repeated login failures.",
		}),
		revocations: factory.NewCounter(prometheus.CounterOpts{
			Name: "auth_token_revocations_total",
			Help: "Refresh tokens revoked by logout and logout-all.",
		}),
	}
}

// NopMetrics returns metrics backed by a throwaway registry, for tests.
func NopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

func (m *Metrics) loginOutcome(outcome string) {
	m.logins.WithLabelValues(outcome).Inc()
}
