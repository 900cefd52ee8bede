// Package signature authenticates messaging-gateway webhook payloads.
//
// The gateway signs the raw request body with HMAC-SHA256 keyed by the channel
// secret and sends the base64 digest in a header. Verification must not leak
// how much of a forged signature matched, so every comparison here is
// constant time.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// Header is the request header carrying the base64 signature.
const Header = "X-Line-Signature"

// Sign returns the base64 HMAC-SHA256 of body keyed by secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify reports whether provided is the signature of body under secret.
// It returns false, never panics, for an empty secret or signature.
func Verify(secret, body []byte, provided string) bool {
	if len(secret) == 0 || provided == "" {
		return false
	}
	return Equal(Sign(secret, body), provided)
}

// Equal compares two strings in time independent of their common prefix.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
