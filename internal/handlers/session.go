package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/twentyfive/authgate/internal/auth"
	"github.com/twentyfive/authgate/internal/middleware"
	"github.com/twentyfive/authgate/internal/services"
	appErrors "github.com/twentyfive/authgate/pkg/errors"
	"github.com/twentyfive/authgate/pkg/logger"
	"github.com/twentyfive/authgate/pkg/response"
)

// SessionHandler reads, refreshes and ends sessions.
type SessionHandler struct {
	accounts *services.AccountService
	pipeline *iauth.Pipeline
	sessions *SessionIssuer
}

func NewSessionHandler(accounts *services.AccountService, pipeline *iauth.Pipeline, sessions *SessionIssuer) *SessionHandler {
	return &SessionHandler{accounts: accounts, pipeline: pipeline, sessions: sessions}
}

// GET /auth/session
func (h *SessionHandler) Get(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, iauth.Shape(claims))
}

// POST /auth/session
//
// Re-derives the token from the user row. A pushed emailVerified=true is
// only honoured once the row agrees.
func (h *SessionHandler) Refresh(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var update iauth.SessionUpdate
	if err := c.ShouldBindJSON(&update); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return
	}

	user, err := h.accounts.FindByID(requestContext(c), claims.UserID)
	if errors.Is(err, services.ErrUserNotFound) {
		h.sessions.Clear(c)
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err != nil {
		logger.WithModule("session").Error("failed to load user", zap.Error(err))
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	if update.EmailVerified != nil && *update.EmailVerified && !user.IsEmailVerified() {
		update.EmailVerified = nil
	}

	next := h.pipeline.Refresh(h.pipeline.Sync(*claims, user), update)
	session, err := h.sessions.Issue(c, next)
	if err != nil {
		logger.WithModule("session").Error("failed to issue session", zap.Error(err))
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	c.JSON(http.StatusOK, session)
}

// POST /auth/signout
func (h *SessionHandler) SignOut(c *gin.Context) {
	h.sessions.Clear(c)
	response.Flat(c, http.StatusOK, gin.H{})
}

// GET /api/me
func (h *SessionHandler) Me(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	user, err := h.accounts.FindByID(requestContext(c), claims.UserID)
	if errors.Is(err, services.ErrUserNotFound) {
		response.Error(c, appErrors.ErrNotFound)
		return
	}
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"session": iauth.Shape(claims),
		"user":    user,
	})
}

// GET /auth/csrf
func CSRFToken(c *gin.Context) {
	response.Flat(c, http.StatusOK, gin.H{"csrfToken": c.Writer.Header().Get(middleware.CSRFHeaderName)})
}
