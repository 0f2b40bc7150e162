package app

import (
	"strings"

	"github.com/twentyfive/authgate/internal/middleware"
)

// MiddlewareConfig converts the access section. Empty lists keep the middleware defaults.
func (c AccessConfig) MiddlewareConfig() middleware.AccessConfig {
	csp := strings.TrimSpace(c.ContentSecurityPolicy)
	if strings.EqualFold(csp, "default") {
		csp = middleware.DefaultContentSecurityPolicy
	}
	return middleware.AccessConfig{
		Mode:                  strings.ToLower(strings.TrimSpace(c.Mode)),
		PublicPaths:           c.PublicPaths,
		ProtectedPrefixes:     c.ProtectedPrefixes,
		APIPrefixes:           c.APIPrefixes,
		ContentSecurityPolicy: csp,
	}
}
