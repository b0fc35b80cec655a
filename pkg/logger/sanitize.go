package logger

import (
	"strings"
)

const redacted = "***"

// sensitiveFragments mark a key as sensitive wherever they appear in it.
var sensitiveFragments = []string{
	"password",
	"token",
	"apikey",
	"secret",
	"authorization",
	"paymentref",
	"serverseed",
}

// sensitiveNames must match the whole key. Activation and coupon codes are
// redeemable value, but "code" inside a key also names status codes.
var sensitiveNames = map[string]struct{}{
	"code":          {},
	"codes":         {},
	"couponcode":    {},
	"deliveredcode": {},
}

// IsSensitiveKey ignores case, dashes and underscores.
func IsSensitiveKey(key string) bool {
	normalized := strings.NewReplacer("-", "", "_", "").Replace(strings.ToLower(strings.TrimSpace(key)))
	if normalized == "" {
		return false
	}
	if _, ok := sensitiveNames[normalized]; ok {
		return true
	}
	for _, fragment := range sensitiveFragments {
		if strings.Contains(normalized, fragment) {
			return true
		}
	}
	return false
}

// Redact returns a copy of fields with sensitive values masked, descending
// into nested objects and arrays.
func Redact(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}
	out := make(map[string]interface{}, len(fields))
	for key, value := range fields {
		out[key] = redactValue(key, value)
	}
	return out
}

func redactValue(key string, value interface{}) interface{} {
	if IsSensitiveKey(key) {
		return redacted
	}

	switch typed := value.(type) {
	case map[string]interface{}:
		return Redact(typed)
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, item := range typed {
			out[i] = redactValue(key, item)
		}
		return out
	default:
		return value
	}
}
