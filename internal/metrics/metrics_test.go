package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New()
	m.AuditWritten()
	m.AuditFailed()
	m.AuditFailed()
	m.RateLimited("login")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditWrites.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AuditWrites.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitRejections.WithLabelValues("login")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AuditFailed()
		m.RateLimited("general")
		m.AuthFailed("invalid_token")
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.RateLimited("general")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `rate_limit_rejections_total{category="general"} 1`)
}
