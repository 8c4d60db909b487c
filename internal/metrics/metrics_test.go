package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.AuthSucceeded()
	m.AuthFailed("EXPIRED_TOKEN")
	m.AuthFailed("EXPIRED_TOKEN")
	m.RateLimited("auth")
	m.BlacklistPurged(3)
	m.BlacklistPurged(-1)

	require.Equal(t, 1.0, testutil.ToFloat64(m.authRequests.WithLabelValues("success", "")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.authRequests.WithLabelValues("failure", "EXPIRED_TOKEN")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.rateLimitRejected.WithLabelValues("auth")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.blacklistPurged))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.AuthSucceeded()
		m.AuthFailed("x")
		m.AuthzDenied("x")
		m.RateLimited("x")
		m.RateLimitOverridden("x")
		m.RevocationFailedOpen()
		m.BlacklistPurged(1)
	})
}
