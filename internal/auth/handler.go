package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/yourorg/kysafety/internal/errs"
	"github.com/yourorg/kysafety/internal/respond"
)

// Handler serves the current-session endpoints. Both routes sit behind RequireSession.
type Handler struct {
	authn  *Authenticator
	logger *slog.Logger
}

func NewHandler(authn *Authenticator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{authn: authn, logger: logger}
}

// SessionInfo is the public representation of a session.
type SessionInfo struct {
	ID        string     `json:"id"`
	ActorID   string     `json:"actorId"`
	ActorName string     `json:"actorName,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Current handles GET /api/sessions/current
func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		respond.Error(w, r, ErrTokenRequired)
		return
	}
	sess, err := h.authn.Session(r.Context(), actor.SessionID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.OK(w, map[string]any{
		"actor": actor,
		"session": SessionInfo{
			ID:        sess.ID,
			ActorID:   sess.ActorID,
			ActorName: sess.ActorName,
			ExpiresAt: sess.ExpiresAt,
			CreatedAt: sess.CreatedAt,
		},
	})
}

// Revoke handles DELETE /api/sessions/current
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		respond.Error(w, r, ErrTokenRequired)
		return
	}
	log := respond.CorrelationLogger(h.logger, respond.CorrID(r.Context()))
	if err := h.authn.Revoke(r.Context(), actor.SessionID); err != nil {
		log.Error("session revoke failed", slog.Any("error", errs.Loggable(err)))
		respond.Error(w, r, err)
		return
	}
	log.Info("session revoked", slog.String("sessionId", actor.SessionID), slog.String("actorId", actor.ID))
	respond.OK(w, map[string]any{"revoked": actor.SessionID})
}
