package auth

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yourorg/kysafety/internal/errs"
	"github.com/yourorg/kysafety/internal/respond"
)

var ErrRateLimited = errs.New(errs.KindRateLimited, "RATE_LIMITED", "too many requests")

// RequireSession rejects requests without a valid bearer session before any
// handler runs, and stores the Actor in the request context. Failed
// validations spend the client IP's budget, so guessing tokens from one
// address is throttled whatever tokens are sent; valid sessions are limited
// per session.
func RequireSession(authn *Authenticator, limiter *RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := respond.CorrelationLogger(logger, respond.CorrID(r.Context()))
			clientIP := respond.ClientIP(r)
			failureKey := "ip:" + clientIP

			if blocked, retryAfter := limiter.Exhausted(failureKey); blocked {
				writeRateLimited(w, r, retryAfter)
				return
			}

			rawToken := extractToken(r)
			actor, err := authn.Validate(r.Context(), rawToken)
			if err != nil {
				limiter.Allow(failureKey)
				log.Warn("session rejected",
					slog.String("tokenPrefix", ExtractTokenPrefix(rawToken)),
					slog.String("clientIp", clientIP),
					slog.Any("error", errs.Loggable(err)),
				)
				respond.Error(w, r, err)
				return
			}
			if ok, retryAfter := limiter.Allow("session:" + actor.SessionID); !ok {
				writeRateLimited(w, r, retryAfter)
				return
			}

			log.Debug("authenticated request",
				slog.String("actorId", actor.ID),
				slog.String("sessionId", actor.SessionID),
			)
			next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), actor)))
		})
	}
}

// Throttle limits requests per client IP.
func Throttle(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ok, retryAfter := limiter.Allow(respond.ClientIP(r)); !ok {
				writeRateLimited(w, r, retryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeRateLimited(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
	respond.Error(w, r, ErrRateLimited)
}

// extractToken supports: Bearer <token>, ApiKey <token>, or just <token>
func extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	if token, ok := strings.CutPrefix(header, "ApiKey "); ok {
		return strings.TrimSpace(token)
	}
	return header
}
