package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// HashAlgorithm represents supported hashing algorithms.
type HashAlgorithm string

const (
	AlgorithmBcrypt HashAlgorithm = "bcrypt"
	AlgorithmArgon2 HashAlgorithm = "argon2"
)

// ErrMalformedToken indicates the token lacks the kys_ prefix.
var ErrMalformedToken = errors.New("malformed session token")

// TokenPrefix is prepended to every session token.
const TokenPrefix = "kys_"

const lookupPrefixLen = 8

// GenerateToken returns a new raw token (shown once) and its lookup prefix.
func GenerateToken() (rawToken, prefix string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate token: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(buf)
	return TokenPrefix + encoded, encoded[:lookupPrefixLen], nil
}

// HashToken hashes a raw token with the configured algorithm.
func HashToken(rawToken string, cfg Config) (string, error) {
	body, ok := strings.CutPrefix(rawToken, TokenPrefix)
	if !ok {
		return "", ErrMalformedToken
	}
	if HashAlgorithm(cfg.HashAlgorithm) == AlgorithmArgon2 {
		return hashArgon2(body, cfg)
	}
	return hashBcrypt(body, cfg.BcryptCost)
}

// VerifyToken checks rawToken against a stored hash. The algorithm is taken
// from the hash itself so sessions survive an algorithm switch.
func VerifyToken(rawToken, storedHash string) bool {
	body, ok := strings.CutPrefix(rawToken, TokenPrefix)
	if !ok {
		return false
	}
	switch {
	case strings.HasPrefix(storedHash, "$2"):
		return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(body)) == nil
	case strings.HasPrefix(storedHash, "$argon2id$"):
		return verifyArgon2(body, storedHash)
	default:
		return false
	}
}

// ExtractTokenPrefix returns the lookup prefix or "" for a malformed token.
func ExtractTokenPrefix(rawToken string) string {
	body, ok := strings.CutPrefix(rawToken, TokenPrefix)
	if !ok || len(body) < lookupPrefixLen {
		return ""
	}
	return body[:lookupPrefixLen]
}

func hashBcrypt(data string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(data), cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash: %w", err)
	}
	return string(hash), nil
}

// hashArgon2 encodes as $argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
func hashArgon2(data string, cfg Config) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(data), salt, cfg.Argon2Time, cfg.Argon2Memory, cfg.Argon2Threads, 32)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, cfg.Argon2Memory, cfg.Argon2Time, cfg.Argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

func verifyArgon2(data, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return false
	}
	var memory, iterations uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return false
	}
	got := argon2.IDKey([]byte(data), salt, iterations, memory, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}
