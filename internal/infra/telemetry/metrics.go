package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AuthMetrics exposes Prometheus collectors for authentication outcomes.
// A nil receiver is safe; every method no-ops, so wiring stays optional in
// tests and minimal deployments.
type AuthMetrics struct {
	Logins         *prometheus.CounterVec
	Lockouts       prometheus.Counter
	RateLimited    *prometheus.CounterVec
	SessionEvicted prometheus.Counter
	Registrations  prometheus.Counter
}

// NewAuthMetrics constructs and registers the auth outcome collectors.
func NewAuthMetrics(namespace string, reg prometheus.Registerer) (*AuthMetrics, error) {
	if namespace == "" {
		namespace = "identity"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &AuthMetrics{
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts partitioned by outcome.",
		}, []string{"outcome"}),
		Lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "lockouts_total",
			Help:      "Accounts locked after repeated failed attempts.",
		}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "rate_limited_total",
			Help:      "Requests denied by the pre-authentication rate limiter.",
		}, []string{"rule"}),
		SessionEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "sessions_evicted_total",
			Help:      "Sessions evicted by the concurrent-session cap.",
		}),
		Registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "registrations_total",
			Help:      "Accounts created.",
		}),
	}

	for _, c := range []prometheus.Collector{m.Logins, m.Lockouts, m.RateLimited, m.SessionEvicted, m.Registrations} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}

	return m, nil
}

// ObserveLogin records a login attempt outcome ("success", "invalid",
// "locked", "inactive").
func (m *AuthMetrics) ObserveLogin(outcome string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(outcome).Inc()
}

// ObserveLockout records an account lock transition.
func (m *AuthMetrics) ObserveLockout() {
	if m == nil {
		return
	}
	m.Lockouts.Inc()
}

// ObserveRateLimited records a denial by the named rate-limit rule.
func (m *AuthMetrics) ObserveRateLimited(rule string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(rule).Inc()
}

// ObserveSessionEvicted records a capacity eviction.
func (m *AuthMetrics) ObserveSessionEvicted() {
	if m == nil {
		return
	}
	m.SessionEvicted.Inc()
}

// ObserveRegistration records a created account.
func (m *AuthMetrics) ObserveRegistration() {
	if m == nil {
		return
	}
	m.Registrations.Inc()
}
