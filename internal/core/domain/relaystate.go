package domain

import (
	"net/url"
	"strings"
)

// ValidateRelayState ensures a relay state / return location is a safe
// relative path. Returns "/" for any invalid, absolute, or potentially
// dangerous value. This prevents open redirect vulnerabilities.
func ValidateRelayState(relayState string) string {
	relayState = strings.TrimSpace(relayState)
	if relayState == "" {
		return "/"
	}

	// Must be a relative path; reject protocol-relative URLs (//evil.com).
	if !strings.HasPrefix(relayState, "/") || strings.HasPrefix(relayState, "//") {
		return "/"
	}

	parsed, err := url.Parse(relayState)
	if err != nil {
		return "/"
	}
	if parsed.Scheme != "" || parsed.Host != "" {
		return "/"
	}

	// Reject header injection.
	if strings.ContainsAny(relayState, "\r\n") {
		return "/"
	}

	// Decode and re-check for protocol-relative URLs hidden by encoding.
	decoded, err := url.QueryUnescape(relayState)
	if err != nil {
		return "/"
	}
	if strings.HasPrefix(decoded, "//") {
		return "/"
	}

	return relayState
}
