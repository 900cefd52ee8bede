package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/yourorg/kysafety/internal/errs"
)

// Authenticator issues and validates bearer sessions. Validated tokens are
// cached for SessionCacheTTL so the hash comparison runs once per window.
type Authenticator struct {
	store SessionStore
	cfg   Config
	cache *cache.Cache
	now   func() time.Time
}

type cachedSession struct {
	actor     Actor
	expiresAt *time.Time
}

func NewAuthenticator(store SessionStore, cfg Config) *Authenticator {
	ttl := cfg.SessionCacheTTL
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &Authenticator{
		store: store,
		cfg:   cfg,
		cache: cache.New(ttl, 10*time.Minute),
		now:   time.Now,
	}
}

// Issue creates a session for actorID and returns the raw token once.
func (a *Authenticator) Issue(ctx context.Context, actorID, actorName string) (Session, string, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return Session{}, "", errs.Validation([]errs.FieldError{{Code: "REQUIRED", Path: "actorId", Message: "actorId is required"}})
	}
	rawToken, prefix, err := GenerateToken()
	if err != nil {
		return Session{}, "", err
	}
	hash, err := HashToken(rawToken, a.cfg)
	if err != nil {
		return Session{}, "", err
	}

	now := a.now().UTC()
	sess := Session{
		ID:          uuid.NewString(),
		ActorID:     actorID,
		ActorName:   actorName,
		TokenPrefix: prefix,
		TokenHash:   hash,
		CreatedAt:   now,
	}
	if a.cfg.SessionTTL > 0 {
		exp := now.Add(a.cfg.SessionTTL)
		sess.ExpiresAt = &exp
	}
	if err := a.store.CreateSession(ctx, sess); err != nil {
		return Session{}, "", fmt.Errorf("create session: %w", err)
	}
	return sess, rawToken, nil
}

// Validate resolves rawToken to its actor.
func (a *Authenticator) Validate(ctx context.Context, rawToken string) (*Actor, error) {
	if rawToken == "" {
		return nil, ErrTokenRequired
	}
	key := cacheKey(rawToken)
	if v, ok := a.cache.Get(key); ok {
		cached := v.(cachedSession)
		if cached.expiresAt == nil || a.now().Before(*cached.expiresAt) {
			actor := cached.actor
			return &actor, nil
		}
		a.cache.Delete(key)
		return nil, ErrSessionExpired
	}

	prefix := ExtractTokenPrefix(rawToken)
	if prefix == "" {
		return nil, ErrInvalidToken
	}
	candidates, err := a.store.FindByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	for _, sess := range candidates {
		if !VerifyToken(rawToken, sess.TokenHash) {
			continue
		}
		if err := sess.Active(a.now()); err != nil {
			return nil, err
		}
		actor := Actor{ID: sess.ActorID, Name: sess.ActorName, SessionID: sess.ID}
		a.cache.SetDefault(key, cachedSession{actor: actor, expiresAt: sess.ExpiresAt})
		return &actor, nil
	}
	return nil, ErrInvalidToken
}

// Revoke revokes a session and drops any cached validation for it.
func (a *Authenticator) Revoke(ctx context.Context, sessionID string) error {
	if err := a.store.RevokeSession(ctx, sessionID, a.now()); err != nil {
		return err
	}
	for key, item := range a.cache.Items() {
		if cached, ok := item.Object.(cachedSession); ok && cached.actor.SessionID == sessionID {
			a.cache.Delete(key)
		}
	}
	return nil
}

// Session returns the stored session by id.
func (a *Authenticator) Session(ctx context.Context, sessionID string) (Session, error) {
	return a.store.GetSession(ctx, sessionID)
}

func cacheKey(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}
