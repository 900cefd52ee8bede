package broadcast

import (
	"time"

	"github.com/yourorg/kysafety/internal/envconf"
	"github.com/yourorg/kysafety/internal/signature"
)

const DefaultEndpoint = "https://api.line.me/v2/bot/message/broadcast"

// SecretHeader carries the shared secret on POST /api/line/broadcast.
const SecretHeader = "X-Broadcast-Secret"

// Config holds messaging gateway settings.
type Config struct {
	// AccessToken is the LINE channel access token.
	AccessToken string
	// Endpoint is the broadcast URL.
	Endpoint string
	// SharedSecret gates the broadcast endpoint. Empty disables the check.
	SharedSecret string
	// Timeout bounds one gateway call.
	Timeout time.Duration
}

// LoadConfig loads gateway configuration from environment variables.
func LoadConfig() Config {
	return Config{
		AccessToken:  envconf.GetSecret("LINE_CHANNEL_ACCESS_TOKEN"),
		Endpoint:     envconf.Getenv("LINE_BROADCAST_ENDPOINT", DefaultEndpoint),
		SharedSecret: envconf.GetSecret("BROADCAST_SHARED_SECRET"),
		Timeout:      envconf.GetDuration("BROADCAST_TIMEOUT", 10*time.Second),
	}
}

// AuthDisabled reports the explicit no-secret mode, where any caller may
// broadcast. Operators are warned at startup.
func (c Config) AuthDisabled() bool { return c.SharedSecret == "" }

// Authorize checks the shared-secret header value.
func (c Config) Authorize(header string) bool {
	if c.AuthDisabled() {
		return true
	}
	return signature.Equal(header, c.SharedSecret)
}
