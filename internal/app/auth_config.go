package app

import (
	"strings"

	"github.com/twentyfive/authgate/internal/auth"
	"github.com/twentyfive/authgate/internal/auth/providers"
)

const googleCallbackPath = "/auth/google/callback"

// SessionTokenConfig converts AuthConfig into the parameters expected by the session token service.
func (c AuthConfig) SessionTokenConfig() auth.SessionTokenConfig {
	ttl := c.Session.TTL
	if ttl <= 0 {
		ttl = auth.DefaultSessionTTL
	}
	return auth.SessionTokenConfig{
		Secret: strings.TrimSpace(c.Session.Secret),
		Issuer: strings.TrimSpace(c.Session.Issuer),
		TTL:    ttl,
	}
}

// GoogleProviderConfig builds the OAuth client settings. The redirect URL
// falls back to baseURL plus the callback route.
func (c AuthConfig) GoogleProviderConfig(baseURL string) providers.GoogleConfig {
	redirect := strings.TrimSpace(c.Google.RedirectURL)
	if redirect == "" {
		redirect = strings.TrimRight(strings.TrimSpace(baseURL), "/") + googleCallbackPath
	}
	return providers.GoogleConfig{
		ClientID:      strings.TrimSpace(c.Google.ClientID),
		ClientSecret:  strings.TrimSpace(c.Google.ClientSecret),
		RedirectURL:   redirect,
		Scopes:        c.Google.Scopes,
		OfflineAccess: c.Google.OfflineAccess,
		Prompt:        strings.TrimSpace(c.Google.Prompt),
	}
}
