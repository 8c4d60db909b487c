// Package metrics exposes Prometheus collectors for the auth core. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	authRequests      *prometheus.CounterVec
	authzDenied       *prometheus.CounterVec
	rateLimitRejected *prometheus.CounterVec
	rateLimitOverride *prometheus.CounterVec
	revocationOpen    prometheus.Counter
	blacklistPurged   prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		authRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm_auth",
			Name:      "auth_requests_total",
			Help:      "Authentication decisions by result and error code.",
		}, []string{"result", "code"}),
		authzDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm_auth",
			Name:      "authz_denied_total",
			Help:      "Authorization denials by error code.",
		}, []string{"code"}),
		rateLimitRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm_auth",
			Name:      "rate_limit_rejected_total",
			Help:      "Requests rejected by a named limiter.",
		}, []string{"limiter"}),
		rateLimitOverride: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm_auth",
			Name:      "rate_limit_override_total",
			Help:      "Requests that bypassed a limiter through the super-admin override.",
		}, []string{"limiter"}),
		revocationOpen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crm_auth",
			Name:      "revocation_fail_open_total",
			Help:      "Blacklist checks skipped because the store failed.",
		}),
		blacklistPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crm_auth",
			Name:      "blacklist_purged_total",
			Help:      "Expired blacklist entries removed.",
		}),
	}
	reg.MustRegister(m.authRequests, m.authzDenied, m.rateLimitRejected, m.rateLimitOverride, m.revocationOpen, m.blacklistPurged)
	return m
}

func (m *Metrics) AuthSucceeded() {
	if m == nil {
		return
	}
	m.authRequests.WithLabelValues("success", "").Inc()
}

func (m *Metrics) AuthFailed(code string) {
	if m == nil {
		return
	}
	m.authRequests.WithLabelValues("failure", code).Inc()
}

func (m *Metrics) AuthzDenied(code string) {
	if m == nil {
		return
	}
	m.authzDenied.WithLabelValues(code).Inc()
}

func (m *Metrics) RateLimited(limiter string) {
	if m == nil {
		return
	}
	m.rateLimitRejected.WithLabelValues(limiter).Inc()
}

func (m *Metrics) RateLimitOverridden(limiter string) {
	if m == nil {
		return
	}
	m.rateLimitOverride.WithLabelValues(limiter).Inc()
}

func (m *Metrics) RevocationFailedOpen() {
	if m == nil {
		return
	}
	m.revocationOpen.Inc()
}

func (m *Metrics) BlacklistPurged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.blacklistPurged.Add(float64(n))
}
