package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// GoogleName is the provider identifier stored on linked accounts.
const GoogleName = "google"

// GoogleIssuer is Google's OpenID Connect issuer.
const GoogleIssuer = "https://accounts.google.com"

// GoogleConfig configures the Google sign-in provider.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	// OfflineAccess requests a refresh token (access_type=offline).
	OfflineAccess bool
	// Prompt is forwarded as the prompt parameter, e.g. "consent".
	Prompt string

	// Issuer overrides the discovery URL, mainly for tests.
	Issuer     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

type googleProvider struct {
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	httpClient  *http.Client
	offline     bool
	prompt      string
	timeout     time.Duration
}

// NewGoogleProvider performs OIDC discovery and returns a ready provider.
func NewGoogleProvider(ctx context.Context, cfg GoogleConfig) (Provider, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("google provider: client id is required")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("google provider: client secret is required")
	}
	if strings.TrimSpace(cfg.RedirectURL) == "" {
		return nil, errors.New("google provider: redirect url is required")
	}

	issuerURL := strings.TrimSpace(cfg.Issuer)
	if issuerURL == "" {
		issuerURL = GoogleIssuer
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, cfg.HTTPClient)
	}

	discoveryCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	issuer, err := oidc.NewProvider(discoveryCtx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("google provider: discovery failed: %w", err)
	}

	return &googleProvider{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     issuer.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
		verifier:   issuer.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		httpClient: cfg.HTTPClient,
		offline:    cfg.OfflineAccess,
		prompt:     cfg.Prompt,
		timeout:    cfg.Timeout,
	}, nil
}

func (p *googleProvider) Name() string {
	return GoogleName
}

func (p *googleProvider) Begin(_ context.Context, req BeginAuthRequest) (*BeginAuthResponse, error) {
	if strings.TrimSpace(req.State) == "" {
		return nil, errors.New("google provider: state is required")
	}
	if strings.TrimSpace(req.Nonce) == "" {
		return nil, errors.New("google provider: nonce is required")
	}
	if strings.TrimSpace(req.PKCEChallenge) == "" {
		return nil, errors.New("google provider: pkce challenge is required")
	}

	authOpts := []oauth2.AuthCodeOption{
		oidc.Nonce(req.Nonce),
		oauth2.SetAuthURLParam("code_challenge", req.PKCEChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	}
	if p.offline {
		authOpts = append(authOpts, oauth2.AccessTypeOffline)
	}
	if p.prompt != "" {
		authOpts = append(authOpts, oauth2.SetAuthURLParam("prompt", p.prompt))
	}

	url := p.oauthConfig.AuthCodeURL(req.State, authOpts...)
	return &BeginAuthResponse{RedirectURL: url, State: req.State}, nil
}

func (p *googleProvider) Callback(ctx context.Context, req CallbackRequest) (*Identity, error) {
	if req.RawHTTPRequest == nil {
		return nil, errors.New("google provider: request is required")
	}
	query := req.RawHTTPRequest.URL.Query()
	if errStr := query.Get("error"); errStr != "" {
		return nil, fmt.Errorf("google provider: authorization error: %s", errStr)
	}
	code := query.Get("code")
	if code == "" {
		return nil, errors.New("google provider: authorization code missing")
	}
	if strings.TrimSpace(req.PKCEVerifier) == "" {
		return nil, errors.New("google provider: pkce verifier is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if p.httpClient != nil {
		ctx = oidc.ClientContext(ctx, p.httpClient)
	}
	tokenCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	token, err := p.oauthConfig.Exchange(tokenCtx, code, oauth2.VerifierOption(req.PKCEVerifier))
	if err != nil {
		return nil, fmt.Errorf("google provider: exchange failed: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("google provider: id token missing")
	}

	idToken, err := p.verifier.Verify(tokenCtx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("google provider: verify id token: %w", err)
	}
	if req.ExpectedNonce != "" && idToken.Nonce != req.ExpectedNonce {
		return nil, errors.New("google provider: nonce mismatch")
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("google provider: decode claims: %w", err)
	}

	scope, _ := token.Extra("scope").(string)

	return &Identity{
		Provider:      GoogleName,
		Subject:       idToken.Subject,
		Email:         strings.ToLower(stringValue(claims, "email")),
		EmailVerified: boolValue(claims, "email_verified"),
		DisplayName:   stringValue(claims, "name"),
		AvatarURL:     stringValue(claims, "picture"),
		Grant: Grant{
			AccessToken:  token.AccessToken,
			RefreshToken: token.RefreshToken,
			IDToken:      rawIDToken,
			TokenType:    token.TokenType,
			Scope:        scope,
			Expiry:       token.Expiry,
		},
		RawClaims: claims,
	}, nil
}

func stringValue(claims map[string]any, key string) string {
	if v, ok := claims[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func boolValue(claims map[string]any, key string) bool {
	if v, ok := claims[key]; ok {
		switch val := v.(type) {
		case bool:
			return val
		case string:
			return strings.EqualFold(val, "true")
		}
	}
	return false
}
