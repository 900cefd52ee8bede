// Package respond writes JSON responses and carries the request correlation id.
package respond

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/yourorg/kysafety/internal/errs"
)

const CorrelationHeader = "X-Correlation-Id"

type corrIDKey struct{}

// ErrorBody is the structured failure payload returned by every endpoint.
type ErrorBody struct {
	OK             bool              `json:"ok"`
	Kind           errs.Kind         `json:"kind"`
	Code           string            `json:"code"`
	Message        string            `json:"message"`
	CorrID         string            `json:"corrId,omitempty"`
	Retryable      bool              `json:"retryable"`
	Errors         []errs.FieldError `json:"errors,omitempty"`
	UpstreamStatus int               `json:"upstreamStatus,omitempty"`
	UpstreamBody   string            `json:"upstreamBody,omitempty"`
}

// Correlation reads X-Correlation-Id or generates one, stores it in the request
// context and echoes it on the response.
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corrID := strings.TrimSpace(r.Header.Get(CorrelationHeader))
		if corrID == "" {
			corrID = generateCorrID()
		}
		w.Header().Set(CorrelationHeader, corrID)
		ctx := context.WithValue(r.Context(), corrIDKey{}, corrID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CorrID returns the correlation id stored by Correlation.
func CorrID(ctx context.Context) string {
	v, _ := ctx.Value(corrIDKey{}).(string)
	return v
}

func CorrelationLogger(logger *slog.Logger, corrID string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("corrId", corrID)
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// OK writes {"ok":true} merged with fields.
func OK(w http.ResponseWriter, fields map[string]any) {
	body := map[string]any{"ok": true}
	for k, v := range fields {
		body[k] = v
	}
	JSON(w, http.StatusOK, body)
}

// Error maps err onto its HTTP status and writes the structured payload.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	e := errs.As(err)
	status := Status(e.Kind)
	JSON(w, status, ErrorBody{
		OK:             false,
		Kind:           e.Kind,
		Code:           e.Code,
		Message:        e.Message,
		CorrID:         CorrID(r.Context()),
		Retryable:      e.Kind == errs.KindUpstream || e.Kind == errs.KindPersistence || e.Kind == errs.KindRateLimited,
		Errors:         e.Fields,
		UpstreamStatus: e.UpstreamStatus,
		UpstreamBody:   e.UpstreamBody,
	})
}

// Status maps a failure kind to its HTTP status code.
func Status(kind errs.Kind) int {
	switch kind {
	case errs.KindValidation, errs.KindInvariant:
		return http.StatusBadRequest
	case errs.KindAuthentication:
		return http.StatusUnauthorized
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ClientIP returns the peer host of r without its port. Forwarding headers
// only count once TrustProxies has rewritten RemoteAddr for a trusted hop.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ParseTrustedProxies reads a comma separated list of CIDRs or bare addresses.
func ParseTrustedProxies(list string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if strings.Contains(item, "/") {
			p, err := netip.ParsePrefix(item)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", item, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", item, err)
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// TrustProxies replaces RemoteAddr with the forwarded client address when the
// direct peer is one of trusted. X-Forwarded-For is read right to left and the
// first untrusted hop wins; X-Real-IP is the fallback. With no trusted
// prefixes the headers are ignored.
func TrustProxies(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(trusted) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if peer, err := netip.ParseAddr(ClientIP(r)); err == nil && isTrusted(trusted, peer) {
				if client, ok := forwardedClient(r, trusted); ok {
					r2 := r.Clone(r.Context())
					r2.RemoteAddr = client.String()
					r = r2
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func forwardedClient(r *http.Request, trusted []netip.Prefix) (netip.Addr, bool) {
	var hops []string
	for _, v := range r.Header.Values("X-Forwarded-For") {
		hops = append(hops, strings.Split(v, ",")...)
	}
	var leftmost netip.Addr
	for i := len(hops) - 1; i >= 0; i-- {
		addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			break
		}
		if !isTrusted(trusted, addr) {
			return addr.Unmap(), true
		}
		leftmost = addr
	}
	if leftmost.IsValid() {
		return leftmost.Unmap(), true
	}
	if addr, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return addr.Unmap(), true
	}
	return netip.Addr{}, false
}

func isTrusted(trusted []netip.Prefix, addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func generateCorrID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
