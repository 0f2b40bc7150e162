package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/twentyfive/authgate/internal/auth"
	"github.com/twentyfive/authgate/internal/services"
	appErrors "github.com/twentyfive/authgate/pkg/errors"
	"github.com/twentyfive/authgate/pkg/logger"
	"github.com/twentyfive/authgate/pkg/metrics"
	"github.com/twentyfive/authgate/pkg/response"
)

var (
	errInvalidPhone      = appErrors.NewBadRequest("Phone number must contain between 10 and 15 digits")
	errOTPRateLimit      = appErrors.ErrRateLimit.WithMessage("Too many verification attempts. Please try again later.")
	errOTPUnavailable    = appErrors.ErrInternalServer.WithMessage("Unable to request verification code at this time.")
	errVerifyUnavailable = appErrors.ErrInternalServer.WithMessage("Unable to verify the code at this time.")
)

var phoneMessages = fieldMessages{"phone": "Phone number is required"}

// PhoneHandler exposes the OTP request and verification endpoints.
type PhoneHandler struct {
	otp         *services.PhoneOTPService
	pipeline    *iauth.Pipeline
	sessions    *SessionIssuer
	exposeDebug bool
}

// NewPhoneHandler wires the handler. exposeDebug returns the plaintext code in
// responses and must only be set outside production.
func NewPhoneHandler(otp *services.PhoneOTPService, pipeline *iauth.Pipeline, sessions *SessionIssuer, exposeDebug bool) *PhoneHandler {
	return &PhoneHandler{otp: otp, pipeline: pipeline, sessions: sessions, exposeDebug: exposeDebug}
}

type requestOTPRequest struct {
	Phone string `json:"phone" validate:"required,min=6"`
}

type verifyOTPRequest struct {
	Phone string `json:"phone" validate:"required,min=6"`
	Code  string `json:"code" validate:"required,otpcode"`
}

// POST /auth/phone/request-otp
func (h *PhoneHandler) RequestOTP(c *gin.Context) {
	var req requestOTPRequest
	if !bindAndValidate(c, &req, phoneMessages) {
		return
	}

	issued, err := h.otp.Request(requestContext(c), req.Phone)
	if err != nil {
		switch {
		case errors.Is(err, iauth.ErrInvalidPhoneNumber):
			response.Error(c, errInvalidPhone)
		case errors.Is(err, services.ErrOTPRateLimited):
			response.Error(c, errOTPRateLimit)
		default:
			logger.WithModule("phone").Error("failed to request phone otp", zap.Error(err))
			response.Error(c, errOTPUnavailable)
		}
		return
	}

	body := gin.H{"maskedPhone": issued.MaskedPhone}
	if h.exposeDebug {
		logger.WithModule("phone").Info("otp issued", zap.String("masked_phone", issued.MaskedPhone), zap.String("code", issued.Code))
		body["debugCode"] = issued.Code
	}
	response.Flat(c, http.StatusOK, body)
}

// POST /auth/phone/verify
func (h *PhoneHandler) Verify(c *gin.Context) {
	var req verifyOTPRequest
	if !bindAndValidate(c, &req, phoneMessages) {
		return
	}

	identity, err := h.otp.Verify(requestContext(c), req.Phone, req.Code)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues(string(iauth.KindPhone), "failure").Inc()
		switch {
		case errors.Is(err, services.ErrOTPInvalid):
			response.Error(c, appErrors.ErrInvalidCode)
		case errors.Is(err, services.ErrOTPExpired):
			response.Error(c, appErrors.ErrCodeExpired)
		case errors.Is(err, services.ErrOTPFormat):
			response.Error(c, appErrors.ErrInvalidCode.WithMessage("Verification code must be 6 digits"))
		case errors.Is(err, iauth.ErrInvalidPhoneNumber):
			response.Error(c, errInvalidPhone)
		case errors.Is(err, services.ErrOTPRateLimited):
			response.Error(c, errOTPRateLimit)
		default:
			logger.WithModule("phone").Error("failed to verify phone otp", zap.Error(err))
			response.Error(c, errVerifyUnavailable)
		}
		return
	}

	claims := h.pipeline.SignInPhone(identity.User, identity.Masked, identity.LastFour)
	session, err := h.sessions.Issue(c, claims)
	if err != nil {
		logger.WithModule("phone").Error("failed to issue session", zap.Error(err))
		response.Error(c, errVerifyUnavailable)
		return
	}

	metrics.AuthAttempts.WithLabelValues(string(iauth.KindPhone), "success").Inc()
	response.Flat(c, http.StatusOK, gin.H{"session": session})
}
