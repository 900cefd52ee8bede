package respond

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/kysafety/internal/errs"
)

func TestCorrelationEchoesHeader(t *testing.T) {
	var seen string
	h := Correlation(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationHeader, "corr-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "corr-1", seen)
	assert.Equal(t, "corr-1", rec.Header().Get(CorrelationHeader))
}

func TestCorrelationGenerates(t *testing.T) {
	h := Correlation(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, rec.Header().Get(CorrelationHeader), 32)
}

func TestErrorPayload(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	Error(rec, req, errs.Upstream("GATEWAY_ERROR", 503, "down", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.False(t, body.OK)
	assert.Equal(t, errs.KindUpstream, body.Kind)
	assert.Equal(t, 503, body.UpstreamStatus)
	assert.Equal(t, "down", body.UpstreamBody)
	assert.True(t, body.Retryable)
}

func TestStatus(t *testing.T) {
	cases := map[errs.Kind]int{
		errs.KindValidation:     http.StatusBadRequest,
		errs.KindInvariant:      http.StatusBadRequest,
		errs.KindAuthentication: http.StatusUnauthorized,
		errs.KindNotFound:       http.StatusNotFound,
		errs.KindRateLimited:    http.StatusTooManyRequests,
		errs.KindUpstream:       http.StatusInternalServerError,
		errs.KindPersistence:    http.StatusInternalServerError,
		errs.KindConfiguration:  http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, Status(kind), string(kind))
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:40001"
	assert.Equal(t, "203.0.113.7", ClientIP(req))

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "203.0.113.7:40002"
	assert.Equal(t, ClientIP(req), ClientIP(other), "port must not split a client")

	req.RemoteAddr = "[2001:db8::1]:443"
	assert.Equal(t, "2001:db8::1", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "10.0.0.3")
	req.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "2001:db8::1", ClientIP(req), "headers are ignored without TrustProxies")
}

func TestParseTrustedProxies(t *testing.T) {
	got, err := ParseTrustedProxies(" 10.0.0.0/8, 192.0.2.1 ,,2001:db8::/32")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "10.0.0.0/8", got[0].String())
	assert.Equal(t, "192.0.2.1/32", got[1].String())

	empty, err := ParseTrustedProxies("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseTrustedProxies("10.0.0.0/33")
	assert.Error(t, err)
	_, err = ParseTrustedProxies("proxy.local")
	assert.Error(t, err)
}

func TestTrustProxies(t *testing.T) {
	trusted, err := ParseTrustedProxies("10.0.0.0/8")
	require.NoError(t, err)

	var seen string
	h := TrustProxies(trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClientIP(r)
	}))

	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"untrusted peer keeps its address", "203.0.113.7:5000", "198.51.100.1", "", "203.0.113.7"},
		{"trusted peer forwards client", "10.0.0.5:5000", "198.51.100.1", "", "198.51.100.1"},
		{"spoofed leftmost hop is skipped", "10.0.0.5:5000", "1.2.3.4, 198.51.100.1, 10.0.0.9", "", "198.51.100.1"},
		{"all hops trusted", "10.0.0.5:5000", "10.0.0.8, 10.0.0.9", "", "10.0.0.8"},
		{"real ip fallback", "10.0.0.5:5000", "", "198.51.100.2", "198.51.100.2"},
		{"garbage header", "10.0.0.5:5000", "not-an-ip", "", "10.0.0.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, seen)
		})
	}
}
