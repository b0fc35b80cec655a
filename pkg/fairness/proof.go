package fairness

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

var ErrMissingSecret = errors.New("fairness: secret key is not configured")

// DrawPayload is the frozen input set of a single draw. Field order is the
// canonical serialisation order and must not change once proofs are issued.
type DrawPayload struct {
	UserID      string `json:"userId"`
	LootboxID   string `json:"lootboxId"`
	ItemID      string `json:"itemId"`
	Timestamp   int64  `json:"timestamp"`
	RandomValue int64  `json:"randomValue"`
	TotalWeight int64  `json:"totalWeight"`
}

// Canonical returns the byte sequence the proof is computed over.
func (p DrawPayload) Canonical() ([]byte, error) {
	return json.Marshal(p)
}

// KeyedProof computes HMAC-SHA256 over the canonical payload with a key scoped
// to the draw timestamp: secret + "_" + timestamp.
func KeyedProof(payload DrawPayload, secret string) (string, error) {
	cleanSecret := strings.TrimSpace(secret)
	if cleanSecret == "" {
		return "", ErrMissingSecret
	}

	data, err := payload.Canonical()
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, []byte(epochKey(cleanSecret, payload.Timestamp)))
	_, _ = mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifyProof recomputes the proof and compares it in constant time.
func VerifyProof(payload DrawPayload, secret, claimed string) bool {
	expected, err := KeyedProof(payload, secret)
	if err != nil {
		return false
	}

	provided := strings.ToLower(strings.TrimSpace(claimed))
	if len(provided) != len(expected) {
		return false
	}
	return hmac.Equal([]byte(provided), []byte(expected))
}

// Fingerprint hashes client signals into a stable identifier. Keys are
// serialised in sorted order so map iteration never changes the result.
func Fingerprint(inputs map[string]string) string {
	normalized := make(map[string]string, len(inputs))
	for key, value := range inputs {
		normalized[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	// encoding/json writes map keys sorted; map[string]string always marshals.
	data, _ := json.Marshal(normalized)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func epochKey(secret string, timestamp int64) string {
	return secret + "_" + strconv.FormatInt(timestamp, 10)
}
