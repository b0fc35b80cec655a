package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignCallback signs a payment confirmation. Parts are joined with ":" so a
// signature for one deposit never verifies for another.
func SignCallback(secret string, parts ...string) string {
	cleanSecret := strings.TrimSpace(secret)
	if cleanSecret == "" || len(parts) == 0 {
		return ""
	}

	mac := hmac.New(sha256.New, []byte(cleanSecret))
	_, _ = mac.Write([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(mac.Sum(nil))
}

func VerifyCallback(secret, signature string, parts ...string) bool {
	expected := SignCallback(secret, parts...)
	if expected == "" {
		return false
	}

	provided := strings.ToLower(strings.TrimSpace(signature))
	if len(provided) != len(expected) {
		return false
	}

	return hmac.Equal([]byte(provided), []byte(expected))
}
