package risk

import (
	"time"

	"github.com/yourorg/kysafety/internal/envconf"
)

// Config holds photo analyzer settings.
type Config struct {
	// APIKey is the analyzer credential. Empty means the analyzer is not configured.
	APIKey string
	// BaseURL points at an OpenAI compatible endpoint; empty uses the SDK default.
	BaseURL string
	// Model is the vision capable chat model.
	Model string
	// Timeout bounds one analyzer round trip.
	Timeout time.Duration
	// RateLimitPerMinute throttles risk analysis per client.
	RateLimitPerMinute int
}

// LoadConfig loads analyzer configuration from environment variables.
func LoadConfig() Config {
	return Config{
		APIKey:             envconf.GetSecret("OPENAI_API_KEY"),
		BaseURL:            envconf.Getenv("RISK_ANALYZER_BASE_URL", ""),
		Model:              envconf.Getenv("RISK_ANALYZER_MODEL", "gpt-4o-mini"),
		Timeout:            envconf.GetDuration("RISK_ANALYZER_TIMEOUT", 30*time.Second),
		RateLimitPerMinute: envconf.GetInt("RISK_RATE_PER_MIN", 30),
	}
}
