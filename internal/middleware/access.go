package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/twentyfive/authgate/internal/auth"
	"github.com/twentyfive/authgate/pkg/errors"
	"github.com/twentyfive/authgate/pkg/logger"
	"github.com/twentyfive/authgate/pkg/response"
)

// Protection modes.
const (
	ModeAll      = "all"
	ModePrefixes = "prefixes"
)

const (
	SignInPath        = "/auth/signin"
	BlockedPath       = "/auth/blocked"
	VerifyPendingPath = "/auth/verify-email/status?status=pending"
)

// DefaultPublicPaths never require a session.
var DefaultPublicPaths = []string{
	"/",
	"/auth/signin",
	"/auth/error",
	"/auth/blocked",
	"/api/auth",
	"/auth/phone",
	"/auth/google",
	"/auth/verify-email",
	"/auth/session",
	"/auth/signout",
	"/auth/csrf",
	"/health",
	"/metrics",
}

// AccessConfig controls which paths need a session.
type AccessConfig struct {
	// Mode is ModeAll (everything not public is protected) or ModePrefixes.
	Mode              string
	PublicPaths       []string
	ProtectedPrefixes []string
	// APIPrefixes receive JSON errors instead of redirects.
	APIPrefixes           []string
	ContentSecurityPolicy string
}

func (cfg AccessConfig) withDefaults() AccessConfig {
	if cfg.Mode == "" {
		cfg.Mode = ModeAll
	}
	if len(cfg.PublicPaths) == 0 {
		cfg.PublicPaths = DefaultPublicPaths
	}
	if len(cfg.ProtectedPrefixes) == 0 {
		cfg.ProtectedPrefixes = []string{"/protected", "/api"}
	}
	if cfg.APIPrefixes == nil {
		cfg.APIPrefixes = []string{"/api"}
	}
	return cfg
}

// Access gates protected paths on the session placed in the context by Session.
// It reads only token claims.
func Access(cfg AccessConfig) gin.HandlerFunc {
	cfg = cfg.withDefaults()
	log := logger.WithModule("access")

	return func(c *gin.Context) {
		path := c.Request.URL.Path

		if !cfg.isPublic(path) && cfg.isProtected(path) {
			claims, _ := ClaimsFromContext(c)
			switch {
			case claims == nil:
				deny(c, cfg, errors.ErrUnauthorized, SignInPath+"?callbackUrl="+url.QueryEscape(c.Request.URL.RequestURI()))
				return
			case claims.IsLikelyFake:
				log.Warn("blocked likely fake account", zap.String("user_id", claims.UserID), zap.String("path", path))
				deny(c, cfg, errors.ErrAccessDenied, BlockedPath)
				return
			case claims.Provider != iauth.KindPhone && !claims.EmailVerified:
				deny(c, cfg, errors.ErrForbidden.WithMessage("Email verification required"), VerifyPendingPath)
				return
			}
		}

		setSecurityHeaders(c, cfg.ContentSecurityPolicy)
		c.Next()
	}
}

func deny(c *gin.Context, cfg AccessConfig, apiErr *errors.AppError, location string) {
	if matchesAny(c.Request.URL.Path, cfg.APIPrefixes) {
		response.Error(c, apiErr)
		c.Abort()
		return
	}
	c.Redirect(http.StatusFound, location)
	c.Abort()
}

func (cfg AccessConfig) isPublic(path string) bool {
	return matchesAny(path, cfg.PublicPaths)
}

func (cfg AccessConfig) isProtected(path string) bool {
	if cfg.Mode == ModePrefixes {
		return matchesAny(path, cfg.ProtectedPrefixes)
	}
	return true
}

// matchesAny reports whether path equals a prefix or sits below it.
// "/" only matches the root itself.
func matchesAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		p = strings.TrimRight(p, "/")
		if p == "" {
			if path == "/" {
				return true
			}
			continue
		}
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
