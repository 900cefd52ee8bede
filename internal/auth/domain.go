// Package auth validates bearer sessions for the KY operator endpoints.
//
// Tokens have the form kys_<random>. Only a bcrypt or argon2id hash is stored,
// keyed for lookup by the first eight characters after the prefix.
package auth

import (
	"context"
	"time"

	"github.com/yourorg/kysafety/internal/errs"
)

// ActorContextKey is the context key for the authenticated actor.
type ActorContextKey struct{}

var (
	ErrTokenRequired   = errs.New(errs.KindAuthentication, "AUTH_REQUIRED", "bearer token required")
	ErrInvalidToken    = errs.New(errs.KindAuthentication, "INVALID_TOKEN", "invalid bearer token")
	ErrSessionExpired  = errs.New(errs.KindAuthentication, "SESSION_EXPIRED", "session has expired")
	ErrSessionRevoked  = errs.New(errs.KindAuthentication, "SESSION_REVOKED", "session has been revoked")
	ErrSessionNotFound = errs.New(errs.KindNotFound, "SESSION_NOT_FOUND", "session not found")
)

// Session is a stored operator session.
type Session struct {
	ID          string     `json:"id"`
	ActorID     string     `json:"actorId"`
	ActorName   string     `json:"actorName"`
	TokenPrefix string     `json:"tokenPrefix"` // first 8 chars for lookup
	TokenHash   string     `json:"-"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	RevokedAt   *time.Time `json:"revokedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Active reports whether s may authenticate requests at now.
func (s Session) Active(now time.Time) error {
	if s.RevokedAt != nil {
		return ErrSessionRevoked
	}
	if s.ExpiresAt != nil && !now.Before(*s.ExpiresAt) {
		return ErrSessionExpired
	}
	return nil
}

// Actor is the authenticated operator making a request.
type Actor struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SessionID string `json:"sessionId"`
}

// SessionStore persists sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, s Session) error
	// FindByPrefix returns every session whose token shares prefix.
	FindByPrefix(ctx context.Context, prefix string) ([]Session, error)
	// GetSession returns ErrSessionNotFound for an unknown id.
	GetSession(ctx context.Context, id string) (Session, error)
	// RevokeSession stamps RevokedAt. Revoking twice keeps the first stamp.
	RevokeSession(ctx context.Context, id string, at time.Time) error
}

// ActorFromContext extracts the actor stored by RequireSession.
func ActorFromContext(ctx context.Context) (*Actor, bool) {
	actor, ok := ctx.Value(ActorContextKey{}).(*Actor)
	return actor, ok
}

// ContextWithActor adds actor to context.
func ContextWithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, ActorContextKey{}, actor)
}
