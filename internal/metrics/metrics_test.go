package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	m := New()

	m.RequestBlocked()
	m.RequestBlocked()
	m.PageClosed("blacklist")
	m.Restarted(0, true)
	m.GateAttempt(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsBlocked))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PagesClosed.WithLabelValues("blacklist")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Restarts.WithLabelValues("0", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GateAttempts.WithLabelValues("rejected")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RequestBlocked()
		m.PageClosed("x")
		m.PhaseEntered("pre_auth")
		m.Restarted(1, false)
		m.BrowsersOpen(2)
		m.GateAttempt(true)
		m.SnapshotReceived("config")
	})
}

func TestHandlerServesExposition(t *testing.T) {
	m := New()
	m.RequestBlocked()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "kioskd_requests_blocked_total 1")
}
