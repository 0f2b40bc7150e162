package providers

import (
	"context"
	"net/http"
	"time"
)

// BeginAuthRequest captures contextual information required to begin an external auth flow.
type BeginAuthRequest struct {
	State         string
	Nonce         string
	PKCEChallenge string
}

// BeginAuthResponse contains the redirect information required to continue the external auth flow.
type BeginAuthResponse struct {
	RedirectURL string
	State       string
}

// CallbackRequest captures the raw HTTP details sent back by an external provider.
type CallbackRequest struct {
	PKCEVerifier   string
	ExpectedNonce  string
	RawHTTPRequest *http.Request
}

// Grant is the upstream OAuth token set, persisted on the linked account.
type Grant struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	TokenType    string
	Scope        string
	Expiry       time.Time
}

// Identity represents the profile returned from an external authentication provider.
type Identity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	DisplayName   string
	AvatarURL     string
	Grant         Grant
	RawClaims     map[string]any
}

// Provider defines the behaviour required for an interactive external authentication provider.
type Provider interface {
	Name() string
	Begin(ctx context.Context, req BeginAuthRequest) (*BeginAuthResponse, error)
	Callback(ctx context.Context, req CallbackRequest) (*Identity, error)
}
