package sanitize

import (
	"html"
	"net/url"
	"strings"
	"sync"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicyOnce sync.Once
	strictPolicy     *bluemonday.Policy
)

// Text strips all markup and control characters. The result is plain text
// that is shown verbatim to other users, so entities are decoded once after
// stripping to avoid double escaping in clients.
func Text(input string) string {
	value := strings.TrimSpace(input)
	if value == "" {
		return ""
	}

	stripped := html.UnescapeString(getStrictPolicy().Sanitize(value))
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, stripped))
}

func TextPtr(input *string) *string {
	if input == nil {
		return nil
	}
	value := Text(*input)
	if value == "" {
		return nil
	}
	return &value
}

// URL keeps absolute http(s) links and drops everything else, including
// javascript: and data: schemes.
func URL(input *string) *string {
	if input == nil {
		return nil
	}
	value := strings.TrimSpace(*input)
	parsed, err := url.Parse(value)
	if err != nil || parsed.Host == "" {
		return nil
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		clean := parsed.String()
		return &clean
	default:
		return nil
	}
}

func getStrictPolicy() *bluemonday.Policy {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}
