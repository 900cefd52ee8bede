package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		HashAlgorithm:   "bcrypt",
		BcryptCost:      4, // bcrypt.MinCost keeps tests fast
		SessionTTL:      time.Hour,
		SessionCacheTTL: time.Minute,
	}
}

func TestGenerateToken(t *testing.T) {
	rawToken, prefix, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if !strings.HasPrefix(rawToken, TokenPrefix) {
		t.Errorf("rawToken doesn't start with %s: %s", TokenPrefix, rawToken)
	}
	if len(prefix) != 8 {
		t.Errorf("prefix length = %d, want 8", len(prefix))
	}
	if got := ExtractTokenPrefix(rawToken); got != prefix {
		t.Errorf("ExtractTokenPrefix() = %s, want %s", got, prefix)
	}
	if got := ExtractTokenPrefix("invalid"); got != "" {
		t.Errorf("ExtractTokenPrefix(invalid) = %s, want empty string", got)
	}
}

func TestHashAndVerifyToken(t *testing.T) {
	configs := map[string]Config{
		"bcrypt": {HashAlgorithm: "bcrypt", BcryptCost: 4},
		"argon2": {HashAlgorithm: "argon2", Argon2Time: 1, Argon2Memory: 8 * 1024, Argon2Threads: 1},
	}
	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			rawToken, _, err := GenerateToken()
			if err != nil {
				t.Fatalf("GenerateToken() error = %v", err)
			}
			hash, err := HashToken(rawToken, cfg)
			if err != nil {
				t.Fatalf("HashToken() error = %v", err)
			}
			if !VerifyToken(rawToken, hash) {
				t.Error("VerifyToken() returned false for valid token")
			}
			if VerifyToken(rawToken+"x", hash) {
				t.Error("VerifyToken() returned true for altered token")
			}
			if VerifyToken(strings.TrimPrefix(rawToken, TokenPrefix), hash) {
				t.Error("VerifyToken() accepted token without prefix")
			}
		})
	}
}

func TestHashToken_Malformed(t *testing.T) {
	if _, err := HashToken("no-prefix", testConfig()); !errors.Is(err, ErrMalformedToken) {
		t.Errorf("HashToken() error = %v, want ErrMalformedToken", err)
	}
	if VerifyToken("kys_abc", "plain") {
		t.Error("VerifyToken() accepted unknown hash format")
	}
}

func TestAuthenticator_IssueAndValidate(t *testing.T) {
	ctx := context.Background()
	authn := NewAuthenticator(NewMemorySessionStore(), testConfig())

	sess, rawToken, err := authn.Issue(ctx, "sv-tanaka", "田中")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if sess.ExpiresAt == nil {
		t.Fatal("expected ExpiresAt with SessionTTL set")
	}

	actor, err := authn.Validate(ctx, rawToken)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if actor.ID != "sv-tanaka" || actor.SessionID != sess.ID || actor.Name != "田中" {
		t.Errorf("unexpected actor: %+v", actor)
	}

	if _, err := authn.Validate(ctx, rawToken+"x"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Validate(altered) error = %v, want ErrInvalidToken", err)
	}
	if _, err := authn.Validate(ctx, ""); !errors.Is(err, ErrTokenRequired) {
		t.Errorf("Validate(empty) error = %v, want ErrTokenRequired", err)
	}
	if _, _, err := authn.Issue(ctx, " ", ""); err == nil {
		t.Error("Issue() accepted an empty actor id")
	}
}

func TestAuthenticator_Expired(t *testing.T) {
	ctx := context.Background()
	authn := NewAuthenticator(NewMemorySessionStore(), testConfig())
	_, rawToken, err := authn.Issue(ctx, "sv-1", "")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	authn.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := authn.Validate(ctx, rawToken); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Validate() error = %v, want ErrSessionExpired", err)
	}
}

func TestAuthenticator_ExpiredWhileCached(t *testing.T) {
	ctx := context.Background()
	authn := NewAuthenticator(NewMemorySessionStore(), testConfig())
	_, rawToken, _ := authn.Issue(ctx, "sv-1", "")
	if _, err := authn.Validate(ctx, rawToken); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	authn.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := authn.Validate(ctx, rawToken); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("cached Validate() error = %v, want ErrSessionExpired", err)
	}
}

func TestAuthenticator_RevokeDropsCache(t *testing.T) {
	ctx := context.Background()
	authn := NewAuthenticator(NewMemorySessionStore(), testConfig())
	sess, rawToken, _ := authn.Issue(ctx, "sv-1", "")

	if _, err := authn.Validate(ctx, rawToken); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if err := authn.Revoke(ctx, sess.ID); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if _, err := authn.Validate(ctx, rawToken); !errors.Is(err, ErrSessionRevoked) {
		t.Errorf("Validate() after revoke error = %v, want ErrSessionRevoked", err)
	}
	if err := authn.Revoke(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Revoke(missing) error = %v, want ErrSessionNotFound", err)
	}
}

func TestMemorySessionStore_RevokeKeepsFirstStamp(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()
	if err := store.CreateSession(ctx, Session{ID: "s1", ActorID: "a", TokenPrefix: "abcdefgh"}); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	first := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	_ = store.RevokeSession(ctx, "s1", first)
	_ = store.RevokeSession(ctx, "s1", first.Add(time.Hour))

	sess, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if sess.RevokedAt == nil || !sess.RevokedAt.Equal(first) {
		t.Errorf("RevokedAt = %v, want %v", sess.RevokedAt, first)
	}

	found, _ := store.FindByPrefix(ctx, "abcdefgh")
	if len(found) != 1 {
		t.Errorf("FindByPrefix() returned %d sessions, want 1", len(found))
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2)
	for i := 0; i < 2; i++ {
		if ok, _ := rl.Allow("client"); !ok {
			t.Fatalf("request %d denied within burst", i)
		}
	}
	ok, retryAfter := rl.Allow("client")
	if ok {
		t.Fatal("third request allowed")
	}
	if retryAfter <= 0 {
		t.Errorf("retryAfter = %v, want > 0", retryAfter)
	}
	if ok, _ := rl.Allow("other"); !ok {
		t.Error("separate key shares a bucket")
	}

	rl.Reset("client")
	if ok, _ := rl.Allow("client"); !ok {
		t.Error("Reset() did not clear the bucket")
	}

	unlimited := NewRateLimiter(0)
	for i := 0; i < 100; i++ {
		if ok, _ := unlimited.Allow("k"); !ok {
			t.Fatal("disabled limiter denied a request")
		}
	}
}
