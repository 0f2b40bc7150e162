package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/twentyfive/authgate/internal/auth"
	"github.com/twentyfive/authgate/internal/middleware"
	"github.com/twentyfive/authgate/internal/services"
	"github.com/twentyfive/authgate/pkg/logger"
	"github.com/twentyfive/authgate/pkg/response"
)

const verifyStatusPath = "/auth/verify-email/status"

// VerifyEmailHandler resolves verification links.
type VerifyEmailHandler struct {
	verification *services.EmailVerificationService
	pipeline     *iauth.Pipeline
	sessions     *SessionIssuer
	now          func() time.Time
}

func NewVerifyEmailHandler(verification *services.EmailVerificationService, pipeline *iauth.Pipeline, sessions *SessionIssuer) *VerifyEmailHandler {
	return &VerifyEmailHandler{verification: verification, pipeline: pipeline, sessions: sessions, now: time.Now}
}

// GET /auth/verify-email
func (h *VerifyEmailHandler) Verify(c *gin.Context) {
	outcome, user, err := h.verification.Verify(requestContext(c), c.Query("token"))
	if err != nil {
		logger.WithModule("email_verification").Error("verification failed", zap.Error(err))
		response.Error(c, err)
		return
	}

	// Push the new state into the visitor's own session so the gate opens
	// without waiting for the next sign-in.
	if outcome == services.VerifySuccess && user != nil {
		if claims, ok := middleware.ClaimsFromContext(c); ok && claims.UserID == user.ID {
			verified := true
			refreshed := h.pipeline.Refresh(*claims, iauth.SessionUpdate{EmailVerified: &verified})
			if _, err := h.sessions.Issue(c, refreshed); err != nil {
				logger.WithModule("email_verification").Warn("session refresh failed", zap.String("user_id", user.ID), zap.Error(err))
			}
		}
	}

	q := url.Values{}
	q.Set("status", string(outcome))
	q.Set("ts", strconv.FormatInt(h.now().UnixMilli(), 10))
	c.Redirect(http.StatusFound, verifyStatusPath+"?"+q.Encode())
}

// GET /auth/verify-email/status
func (h *VerifyEmailHandler) Status(c *gin.Context) {
	status := services.VerifyOutcome(c.Query("status"))
	switch status {
	case services.VerifySuccess, services.VerifyExpired, services.VerifyInvalid, "pending":
	default:
		status = services.VerifyInvalid
	}

	body := gin.H{"status": status}
	if claims, ok := middleware.ClaimsFromContext(c); ok {
		body["emailVerified"] = claims.EmailVerified
		body["needsEmailVerification"] = claims.NeedsEmailVerification
	}
	response.Flat(c, http.StatusOK, body)
}
