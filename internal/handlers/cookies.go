package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/twentyfive/authgate/internal/auth"
)

const oauthStateCookie = "authgate.oauth-state"

// SessionIssuer signs session claims and manages the session cookie.
type SessionIssuer struct {
	tokens *iauth.SessionTokenService
	secure bool
	domain string
}

// NewSessionIssuer builds the cookie writer. secure forces the Secure flag even
// for plain-HTTP requests (typical behind a TLS terminating proxy).
func NewSessionIssuer(tokens *iauth.SessionTokenService, secure bool, domain string) *SessionIssuer {
	return &SessionIssuer{tokens: tokens, secure: secure, domain: strings.TrimSpace(domain)}
}

// Issue signs claims, sets the session cookie and returns the shaped session.
func (s *SessionIssuer) Issue(c *gin.Context, claims iauth.SessionClaims) (iauth.Session, error) {
	token, expires, err := s.tokens.Issue(claims)
	if err != nil {
		return iauth.Session{}, err
	}

	s.setCookie(c, iauth.SessionCookieName, token, int(s.tokens.TTL().Seconds()))

	session := iauth.Shape(&claims)
	session.Expires = expires
	return session, nil
}

// Clear expires the session cookie.
func (s *SessionIssuer) Clear(c *gin.Context) {
	s.setCookie(c, iauth.SessionCookieName, "", -1)
}

func (s *SessionIssuer) setCookie(c *gin.Context, name, value string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   s.domain,
		MaxAge:   maxAge,
		Secure:   s.secure || isSecureRequest(c.Request),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
