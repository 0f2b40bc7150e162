package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/twentyfive/authgate/internal/auth"
	"github.com/twentyfive/authgate/internal/auth/providers"
	"github.com/twentyfive/authgate/internal/database/testutil"
	"github.com/twentyfive/authgate/internal/middleware"
	"github.com/twentyfive/authgate/internal/ratelimit"
	"github.com/twentyfive/authgate/internal/services"
	"github.com/twentyfive/authgate/pkg/mail"
)

const testBaseURL = "https://app.example.com"

type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) messages() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.sent...)
}

type stubGoogleProvider struct {
	identity    providers.Identity
	callbackErr error
	begun       []providers.BeginAuthRequest
}

func (p *stubGoogleProvider) Name() string { return providers.GoogleName }

func (p *stubGoogleProvider) Begin(_ context.Context, req providers.BeginAuthRequest) (*providers.BeginAuthResponse, error) {
	p.begun = append(p.begun, req)
	redirect := "https://accounts.google.com/o/oauth2/v2/auth?state=" + url.QueryEscape(req.State)
	return &providers.BeginAuthResponse{RedirectURL: redirect, State: req.State}, nil
}

func (p *stubGoogleProvider) Callback(_ context.Context, req providers.CallbackRequest) (*providers.Identity, error) {
	if p.callbackErr != nil {
		return nil, p.callbackErr
	}
	identity := p.identity
	return &identity, nil
}

type handlerFixture struct {
	db           *gorm.DB
	mailer       *recordingMailer
	tokens       *iauth.SessionTokenService
	pipeline     *iauth.Pipeline
	otp          *services.PhoneOTPService
	verification *services.EmailVerificationService
	accounts     *services.AccountService
	issuer       *SessionIssuer
	google       *stubGoogleProvider
	router       *gin.Engine
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	mailer := &recordingMailer{}

	tokenStore, err := services.NewVerificationTokenService(db)
	require.NoError(t, err)

	phoneHasher, err := iauth.NewHasher("phone", "phone-secret")
	require.NoError(t, err)
	otpHasher, err := iauth.NewHasher("otp", "otp-secret")
	require.NoError(t, err)

	otp, err := services.NewPhoneOTPService(db, tokenStore, phoneHasher, otpHasher,
		services.WithOTPLimiter(ratelimit.NewMemoryLimiter(), 5, 10))
	require.NoError(t, err)

	verification, err := services.NewEmailVerificationService(db, mailer, services.WithVerificationBaseURL(testBaseURL))
	require.NoError(t, err)

	accounts, err := services.NewAccountService(db, verification)
	require.NoError(t, err)

	tokens, err := iauth.NewSessionTokenService(iauth.SessionTokenConfig{Secret: "session-secret", Issuer: "authgate-test"})
	require.NoError(t, err)

	codec, err := iauth.NewStateCodecFromSecret("session-secret", 10*time.Minute, nil)
	require.NoError(t, err)

	pipeline := iauth.NewPipeline(nil, accounts)
	issuer := NewSessionIssuer(tokens, false, "")

	google := &stubGoogleProvider{identity: providers.Identity{
		Provider:      providers.GoogleName,
		Subject:       "google-sub-1",
		Email:         "jane@company.com",
		EmailVerified: true,
		DisplayName:   "Jane Doe",
		Grant:         providers.Grant{AccessToken: "ya29.upstream"},
	}}

	phone := NewPhoneHandler(otp, pipeline, issuer, true)
	googleHandler := NewGoogleHandler(google, codec, pipeline, issuer)
	verify := NewVerifyEmailHandler(verification, pipeline, issuer)
	session := NewSessionHandler(accounts, pipeline, issuer)

	router := gin.New()
	router.Use(middleware.Session(tokens))
	router.POST("/auth/phone/request-otp", phone.RequestOTP)
	router.POST("/auth/phone/verify", phone.Verify)
	router.GET("/auth/google/login", googleHandler.Login)
	router.GET("/auth/google/callback", googleHandler.Callback)
	router.GET("/auth/verify-email", verify.Verify)
	router.GET("/auth/verify-email/status", verify.Status)
	router.GET("/auth/session", session.Get)
	router.POST("/auth/session", session.Refresh)
	router.POST("/auth/signout", session.SignOut)
	router.GET("/api/me", session.Me)
	router.GET("/auth/csrf", middleware.CSRF(middleware.CSRFConfig{}), CSRFToken)

	return &handlerFixture{
		db:           db,
		mailer:       mailer,
		tokens:       tokens,
		pipeline:     pipeline,
		otp:          otp,
		verification: verification,
		accounts:     accounts,
		issuer:       issuer,
		google:       google,
		router:       router,
	}
}

func (f *handlerFixture) do(t *testing.T, method, target string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, cookie := range cookies {
		if cookie != nil {
			req.AddCookie(cookie)
		}
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *handlerFixture) claimsFrom(t *testing.T, cookie *http.Cookie) *iauth.SessionClaims {
	t.Helper()
	require.NotNil(t, cookie)
	claims, err := f.tokens.Validate(cookie.Value)
	require.NoError(t, err)
	return claims
}

func responseCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func verificationTokenFrom(t *testing.T, msg mail.Message) string {
	t.Helper()
	marker := testBaseURL + "/auth/verify-email?token="
	idx := strings.Index(msg.Body, marker)
	require.GreaterOrEqual(t, idx, 0, "verification link missing from body")
	rest := msg.Body[idx+len(marker):]
	end := strings.IndexAny(rest, `"<& `)
	require.Greater(t, end, 0)
	return rest[:end]
}
