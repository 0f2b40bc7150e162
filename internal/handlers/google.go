package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/twentyfive/authgate/internal/auth"
	"github.com/twentyfive/authgate/internal/auth/providers"
	"github.com/twentyfive/authgate/pkg/logger"
	"github.com/twentyfive/authgate/pkg/metrics"
)

const (
	authErrorPath   = "/auth/error"
	stateCookieTTL  = 10 * 60
	defaultCallback = "/"
)

// GoogleHandler runs the Google OAuth round trip and the sign-in pipeline.
type GoogleHandler struct {
	provider providers.Provider
	codec    *iauth.StateCodec
	pipeline *iauth.Pipeline
	sessions *SessionIssuer
	log      *zap.Logger
}

// NewGoogleHandler wires the handler. A nil provider means Google sign-in is not configured.
func NewGoogleHandler(provider providers.Provider, codec *iauth.StateCodec, pipeline *iauth.Pipeline, sessions *SessionIssuer) *GoogleHandler {
	return &GoogleHandler{
		provider: provider,
		codec:    codec,
		pipeline: pipeline,
		sessions: sessions,
		log:      logger.WithModule("google"),
	}
}

// GET /auth/google/login
func (h *GoogleHandler) Login(c *gin.Context) {
	if h.provider == nil {
		redirectAuthError(c, "Configuration")
		return
	}

	secrets, err := iauth.NewFlowSecrets()
	if err != nil {
		h.log.Error("failed to generate oauth secrets", zap.Error(err))
		redirectAuthError(c, "Configuration")
		return
	}

	state, err := h.codec.Encode(iauth.StatePayload{
		Provider:    h.provider.Name(),
		CallbackURL: sanitizeRedirect(c.Query("callbackUrl"), defaultCallback),
		Nonce:       secrets.Nonce,
		PKCE:        secrets.Verifier,
	})
	if err != nil {
		h.log.Error("failed to encode oauth state", zap.Error(err))
		redirectAuthError(c, "Configuration")
		return
	}

	resp, err := h.provider.Begin(requestContext(c), providers.BeginAuthRequest{
		State:         state,
		Nonce:         secrets.Nonce,
		PKCEChallenge: secrets.Challenge,
	})
	if err != nil {
		h.log.Error("failed to begin oauth flow", zap.Error(err))
		redirectAuthError(c, "OAuthSignin")
		return
	}

	// Binds the round trip to this browser.
	h.sessions.setCookie(c, oauthStateCookie, state, stateCookieTTL)
	c.Redirect(http.StatusFound, resp.RedirectURL)
}

// GET /auth/google/callback
func (h *GoogleHandler) Callback(c *gin.Context) {
	if h.provider == nil {
		redirectAuthError(c, "Configuration")
		return
	}

	state := c.Query("state")
	cookieState, _ := c.Cookie(oauthStateCookie)
	h.sessions.setCookie(c, oauthStateCookie, "", -1)

	if state == "" || cookieState != state {
		h.fail(c, "OAuthCallback", errors.New("state cookie mismatch"))
		return
	}

	payload, err := h.codec.Decode(state)
	if err != nil {
		h.fail(c, "OAuthCallback", err)
		return
	}

	identity, err := h.provider.Callback(requestContext(c), providers.CallbackRequest{
		PKCEVerifier:   payload.PKCE,
		ExpectedNonce:  payload.Nonce,
		RawHTTPRequest: c.Request,
	})
	if err != nil {
		h.fail(c, "OAuthCallback", err)
		return
	}

	claims, err := h.pipeline.SignInGoogle(requestContext(c), *identity)
	if err != nil {
		if errors.Is(err, iauth.ErrEmailNotVerifiedUpstream) || errors.Is(err, iauth.ErrEmailUntrusted) {
			h.fail(c, "AccessDenied", err)
			return
		}
		h.fail(c, "Callback", err)
		return
	}

	if _, err := h.sessions.Issue(c, claims); err != nil {
		h.fail(c, "Callback", err)
		return
	}

	metrics.AuthAttempts.WithLabelValues(string(iauth.KindGoogle), "success").Inc()
	c.Redirect(http.StatusFound, sanitizeRedirect(payload.CallbackURL, defaultCallback))
}

func (h *GoogleHandler) fail(c *gin.Context, code string, err error) {
	metrics.AuthAttempts.WithLabelValues(string(iauth.KindGoogle), "failure").Inc()
	h.log.Warn("google sign-in rejected", zap.String("reason", code), zap.Error(err))
	redirectAuthError(c, code)
}

func redirectAuthError(c *gin.Context, code string) {
	c.Redirect(http.StatusFound, authErrorPath+"?error="+url.QueryEscape(code))
}
