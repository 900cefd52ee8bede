package pipeline

import (
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/yourorg/kysafety/internal/auth"
	"github.com/yourorg/kysafety/internal/broadcast"
	"github.com/yourorg/kysafety/internal/metrics"
	"github.com/yourorg/kysafety/internal/respond"
)

// RouterDeps collects what NewRouter mounts.
type RouterDeps struct {
	Coordinator    *Coordinator
	Authenticator  *auth.Authenticator
	SessionLimiter *auth.RateLimiter
	RiskLimiter    *auth.RateLimiter
	Webhook        http.Handler
	Broadcast      broadcast.Config
	TrustedProxies []netip.Prefix
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
}

func NewRouter(d RouterDeps) http.Handler {
	svc := NewService(d.Coordinator, d.Broadcast, d.Logger)
	sessions := auth.NewHandler(d.Authenticator, d.Logger)
	requireSession := auth.RequireSession(d.Authenticator, d.SessionLimiter, d.Logger)

	r := chi.NewRouter()
	r.Use(respond.Correlation)
	r.Use(respond.TrustProxies(d.TrustedProxies))
	r.Use(middleware.Recoverer)
	r.Use(d.Metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { respond.OK(w, nil) })
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	if d.Webhook != nil {
		r.Method(http.MethodGet, "/webhook/line", d.Webhook)
		r.Method(http.MethodPost, "/webhook/line", d.Webhook)
	}

	r.Route("/api", func(api chi.Router) {
		api.With(requireSession).Post("/ky/approval", svc.Approve)
		api.With(requireSession).Delete("/ky/entries/{entryId}", svc.DeleteEntry)
		api.With(requireSession).Get("/ky/entries/{entryId}/approval-log", svc.ApprovalLog)
		api.With(auth.Throttle(d.RiskLimiter)).Post("/ky/risk", svc.AssessRisk)
		api.Post("/line/broadcast", svc.Broadcast)

		api.With(requireSession).Get("/sessions/current", sessions.Current)
		api.With(requireSession).Delete("/sessions/current", sessions.Revoke)
	})

	return r
}
