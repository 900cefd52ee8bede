package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordTransition("approve", OutcomeOK)
	m.RecordBroadcast(OutcomeError)
	m.RecordRisk(OutcomeOK, 1.2)
	m.RecordWebhook("accepted")

	called := false
	m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}

func TestRecorders(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	m.RecordTransition("approve", OutcomeOK)
	m.RecordTransition("approve", OutcomeOK)
	m.RecordBroadcast(OutcomeError)
	m.RecordRisk(OutcomeOK, 1.25)
	m.RecordRisk(OutcomeError, 0)
	m.RecordWebhook("rejected_signature")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitionsTotal.WithLabelValues("approve", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.broadcastsTotal.WithLabelValues(OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.riskAnalysesTotal.WithLabelValues(OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookEventsTotal.WithLabelValues("rejected_signature")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.riskFactor))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Delete("/api/ky/entries/{entryId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/api/ky/entries/"+id, nil))
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues(http.MethodDelete, "/api/ky/entries/{entryId}", "404")))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "kysafety_http_requests_total"))
}
