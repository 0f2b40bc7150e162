package api

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/twentyfive/authgate/internal/app"
	iauth "github.com/twentyfive/authgate/internal/auth"
	"github.com/twentyfive/authgate/internal/auth/providers"
	"github.com/twentyfive/authgate/internal/handlers"
	"github.com/twentyfive/authgate/internal/middleware"
	"github.com/twentyfive/authgate/internal/monitoring"
	"github.com/twentyfive/authgate/internal/ratelimit"
	"github.com/twentyfive/authgate/internal/services"
)

// Dependencies carries the services the HTTP surface is built from.
type Dependencies struct {
	Config       *app.Config
	Tokens       *iauth.SessionTokenService
	Pipeline     *iauth.Pipeline
	OTP          *services.PhoneOTPService
	Verification *services.EmailVerificationService
	Accounts     *services.AccountService
	StateCodec   *iauth.StateCodec
	// Google is nil when Google sign-in is not configured.
	Google  providers.Provider
	Limiter ratelimit.Limiter
	Health  *monitoring.HealthManager
}

func (d Dependencies) validate() error {
	switch {
	case d.Config == nil:
		return fmt.Errorf("config must be provided")
	case d.Tokens == nil:
		return fmt.Errorf("session token service must be provided")
	case d.Pipeline == nil:
		return fmt.Errorf("auth pipeline must be provided")
	case d.OTP == nil:
		return fmt.Errorf("phone otp service must be provided")
	case d.Verification == nil:
		return fmt.Errorf("email verification service must be provided")
	case d.Accounts == nil:
		return fmt.Errorf("account service must be provided")
	case d.StateCodec == nil:
		return fmt.Errorf("oauth state codec must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.Session(deps.Tokens))
	r.Use(middleware.Access(cfg.Access.MiddlewareConfig()))

	issuer := handlers.NewSessionIssuer(deps.Tokens, cfg.Server.SecureCookies || cfg.IsProduction(), cfg.Server.CookieDomain)
	registerAuthRoutes(r, deps, issuer)
	registerHealthRoutes(r, cfg, deps.Health)
	registerMetricsRoutes(r, cfg)

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
