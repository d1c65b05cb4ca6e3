//go:build unit

package domain

import "testing"

func TestValidateRelayState(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty defaults to root", "", "/"},
		{"whitespace defaults to root", "   ", "/"},
		{"valid relative path", "/dashboard", "/dashboard"},
		{"valid path with query", "/search?q=hello", "/search?q=hello"},
		{"absolute url rejected", "https://evil.com/phish", "/"},
		{"protocol-relative rejected", "//evil.com", "/"},
		{"missing leading slash rejected", "dashboard", "/"},
		{"header injection rejected", "/path\r\nSet-Cookie: x=y", "/"},
		{"encoded protocol-relative rejected", "/%2F%2Fevil.com", "/"},
		{"plain root", "/", "/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateRelayState(tt.input); got != tt.want {
				t.Errorf("ValidateRelayState(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
