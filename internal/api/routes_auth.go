package api

import (
	"github.com/gin-gonic/gin"

	"github.com/twentyfive/authgate/internal/handlers"
	"github.com/twentyfive/authgate/internal/middleware"
)

func registerAuthRoutes(r *gin.Engine, deps Dependencies, issuer *handlers.SessionIssuer) {
	cfg := deps.Config
	routeLimit := cfg.RateLimit.RouteLimit

	phone := handlers.NewPhoneHandler(deps.OTP, deps.Pipeline, issuer, !cfg.IsProduction())
	phoneGroup := r.Group("/auth/phone")
	{
		phoneGroup.POST("/request-otp", middleware.RateLimit(deps.Limiter, routeLimit, "phone_request"), phone.RequestOTP)
		phoneGroup.POST("/verify", middleware.RateLimit(deps.Limiter, routeLimit, "phone_verify"), phone.Verify)
	}

	// Without credentials the handler answers with a configuration error.
	google := handlers.NewGoogleHandler(deps.Google, deps.StateCodec, deps.Pipeline, issuer)
	googleGroup := r.Group("/auth/google")
	googleGroup.Use(middleware.RateLimit(deps.Limiter, routeLimit, "google"))
	{
		googleGroup.GET("/login", google.Login)
		googleGroup.GET("/callback", google.Callback)
	}

	verify := handlers.NewVerifyEmailHandler(deps.Verification, deps.Pipeline, issuer)
	r.GET("/auth/verify-email", middleware.RateLimit(deps.Limiter, routeLimit, "verify_email"), verify.Verify)
	r.GET("/auth/verify-email/status", verify.Status)

	session := handlers.NewSessionHandler(deps.Accounts, deps.Pipeline, issuer)
	r.GET("/auth/session", session.Get)

	// Cookie-authenticated mutations.
	mutations := r.Group("/auth")
	if cfg.Server.CSRF.Enabled {
		mutations.Use(middleware.CSRF(middleware.CSRFConfig{
			Secure: cfg.Server.SecureCookies || cfg.IsProduction(),
			Domain: cfg.Server.CookieDomain,
		}))
	}
	{
		mutations.POST("/session", session.Refresh)
		mutations.POST("/signout", session.SignOut)
		mutations.GET("/csrf", handlers.CSRFToken)
	}

	api := r.Group("/api")
	api.GET("/me", session.Me)
}
