package auth

import (
	"time"

	"github.com/yourorg/kysafety/internal/envconf"
)

// Config holds session authentication settings.
type Config struct {
	// HashAlgorithm is bcrypt or argon2.
	HashAlgorithm string
	// BcryptCost is the bcrypt cost factor (default: 12).
	BcryptCost int
	// Argon2Time is the argon2 time parameter.
	Argon2Time uint32
	// Argon2Memory is the argon2 memory parameter in KB.
	Argon2Memory uint32
	// Argon2Threads is the argon2 parallelism parameter.
	Argon2Threads uint8
	// SessionTTL is the lifetime of an issued session. Zero means no expiry.
	SessionTTL time.Duration
	// SessionCacheTTL is how long a validated token skips the hash check.
	SessionCacheTTL time.Duration
	// RateLimitPerMinute caps authenticated requests per client.
	RateLimitPerMinute int
}

// LoadConfig loads auth configuration from environment variables.
func LoadConfig() Config {
	return Config{
		HashAlgorithm:      envconf.Getenv("AUTH_HASH_ALGORITHM", "bcrypt"),
		BcryptCost:         envconf.GetInt("AUTH_BCRYPT_COST", 12),
		Argon2Time:         uint32(envconf.GetInt("AUTH_ARGON2_TIME", 1)),
		Argon2Memory:       uint32(envconf.GetInt("AUTH_ARGON2_MEMORY", 64*1024)),
		Argon2Threads:      uint8(envconf.GetInt("AUTH_ARGON2_THREADS", 4)),
		SessionTTL:         envconf.GetDuration("AUTH_SESSION_TTL", 12*time.Hour),
		SessionCacheTTL:    envconf.GetDuration("AUTH_SESSION_CACHE_TTL", time.Minute),
		RateLimitPerMinute: envconf.GetInt("AUTH_RATE_PER_MIN", 120),
	}
}
