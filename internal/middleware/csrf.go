package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/twentyfive/authgate/pkg/crypto"
	"github.com/twentyfive/authgate/pkg/errors"
	"github.com/twentyfive/authgate/pkg/logger"
	"github.com/twentyfive/authgate/pkg/response"
)

const (
	// CSRFCookieName carries the double-submit token. It is readable by scripts
	// so the browser client can copy it into CSRFHeaderName.
	CSRFCookieName = "authgate.csrf-token"
	// CSRFHeaderName must echo the cookie on session refresh and sign-out.
	CSRFHeaderName = "X-CSRF-Token"

	csrfTokenLength  = 32
	csrfCookieMaxAge = 12 * 60 * 60
)

// CSRFConfig matches the CSRF cookie to the session cookie scope.
type CSRFConfig struct {
	// Secure forces the Secure flag, e.g. behind a TLS terminating proxy.
	Secure bool
	Domain string
}

// CSRF guards cookie-authenticated session mutations with a double-submit
// token. GET and HEAD requests mint the token when the visitor has none and
// expose it in the response header; POST requests must present it.
func CSRF(cfg CSRFConfig) gin.HandlerFunc {
	log := logger.WithModule("csrf")
	domain := strings.TrimSpace(cfg.Domain)

	return func(c *gin.Context) {
		token, _ := c.Cookie(CSRFCookieName)

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			if token == "" {
				minted, err := crypto.GenerateToken(csrfTokenLength)
				if err != nil {
					response.Error(c, errors.ErrInternalServer.WithInternal(err))
					c.Abort()
					return
				}
				token = minted
				http.SetCookie(c.Writer, &http.Cookie{
					Name:     CSRFCookieName,
					Value:    token,
					Path:     "/",
					Domain:   domain,
					MaxAge:   csrfCookieMaxAge,
					Secure:   cfg.Secure || c.Request.TLS != nil,
					SameSite: http.SameSiteStrictMode,
				})
			}
			c.Header(CSRFHeaderName, token)

		default:
			presented := strings.TrimSpace(c.GetHeader(CSRFHeaderName))
			if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(presented)) != 1 {
				// Token values stay out of the log.
				log.Warn("csrf token mismatch",
					zap.String("path", c.Request.URL.Path),
					zap.Bool("has_cookie", token != ""),
					zap.Bool("has_header", presented != ""),
				)
				response.Error(c, errors.ErrCSRFInvalid)
				c.Abort()
				return
			}
		}

		c.Next()
	}
}
