package handlers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeRedirect(t *testing.T) {
	cases := map[string]string{
		"":                         "/",
		"  ":                       "/",
		"/dashboard":               "/dashboard",
		"/protected?tab=1":         "/protected?tab=1",
		"//evil.example.com":       "/",
		"https://evil.example.com": "/",
		"/\\evil.example.com":      "/",
		"/ok\r\nSet-Cookie: x=1":   "/",
		"relative/path":            "/",
	}
	for input, want := range cases {
		require.Equal(t, want, sanitizeRedirect(input, "/"), "input %q", input)
	}
}
