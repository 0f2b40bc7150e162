package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/twentyfive/authgate/internal/auth/providers"
	"github.com/twentyfive/authgate/internal/models"
)

var (
	// ErrEmailNotVerifiedUpstream rejects Google profiles whose email Google has not verified.
	ErrEmailNotVerifiedUpstream = errors.New("auth: upstream email is not verified")
	// ErrEmailUntrusted rejects disposable or suspicious addresses.
	ErrEmailUntrusted = errors.New("auth: email address is not trusted")
)

// Kind tags which sign-in path produced a principal.
type Kind string

const (
	KindGoogle Kind = "google"
	KindPhone  Kind = "phone"
)

// Principal is an authenticated identity ready to be turned into session claims.
type Principal interface {
	Kind() Kind
	Account() *models.User
}

// GooglePrincipal is produced by the OAuth path.
type GooglePrincipal struct {
	Profile     providers.Identity
	User        *models.User
	AccessToken string
	LikelyFake  bool
}

func (GooglePrincipal) Kind() Kind { return KindGoogle }

func (p GooglePrincipal) Account() *models.User { return p.User }

// PhonePrincipal is produced by a successful OTP verification.
type PhonePrincipal struct {
	User     *models.User
	Masked   string
	LastFour string
}

func (PhonePrincipal) Kind() Kind { return KindPhone }

func (p PhonePrincipal) Account() *models.User { return p.User }

// IdentityResolver maps a screened Google profile to a stored user, creating
// and linking it when needed and running the email verification branch.
type IdentityResolver interface {
	ResolveGoogle(ctx context.Context, profile providers.Identity) (*models.User, error)
}

// SessionUpdate carries values pushed by the client or by a verification event.
type SessionUpdate struct {
	EmailVerified *bool `json:"emailVerified,omitempty"`
}

// Session is the externally visible session shape.
type Session struct {
	User    SessionUser `json:"user"`
	Expires time.Time   `json:"expires"`
}

// SessionUser flattens the principal variants into one optional-field record.
type SessionUser struct {
	ID                     string `json:"id"`
	Name                   string `json:"name,omitempty"`
	Email                  string `json:"email,omitempty"`
	Image                  string `json:"image,omitempty"`
	EmailVerified          bool   `json:"emailVerified"`
	IsLikelyFake           bool   `json:"isLikelyFake,omitempty"`
	PhoneLogin             bool   `json:"phoneLogin,omitempty"`
	PhoneMasked            string `json:"phoneMasked,omitempty"`
	PhoneLast4             string `json:"phoneLast4,omitempty"`
	AccessToken            string `json:"accessToken,omitempty"`
	NeedsEmailVerification bool   `json:"needsEmailVerification,omitempty"`
}

// PipelineOption customises a Pipeline.
type PipelineOption func(*Pipeline)

// WithBlockLikelyFake selects whether disposable/suspicious Google emails are
// rejected at sign-in (true) or only flagged on the session (false).
func WithBlockLikelyFake(block bool) PipelineOption {
	return func(p *Pipeline) {
		p.blockLikelyFake = block
	}
}

// Pipeline runs sign-in as screen, resolve, enrich, shape.
type Pipeline struct {
	screener        *Screener
	resolver        IdentityResolver
	blockLikelyFake bool
}

// NewPipeline wires the screener and resolver. Fake-looking Google emails are blocked by default.
func NewPipeline(screener *Screener, resolver IdentityResolver, opts ...PipelineOption) *Pipeline {
	if screener == nil {
		screener = NewScreener()
	}
	p := &Pipeline{
		screener:        screener,
		resolver:        resolver,
		blockLikelyFake: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ScreenGoogle applies the Google trust policy. It never touches storage.
func (p *Pipeline) ScreenGoogle(profile providers.Identity) (Verdict, error) {
	email := strings.TrimSpace(profile.Email)
	if email == "" || !profile.EmailVerified {
		return Verdict{}, ErrEmailNotVerifiedUpstream
	}

	verdict := p.screener.Screen(email)
	if verdict.LikelyFake() && p.blockLikelyFake {
		return verdict, ErrEmailUntrusted
	}
	return verdict, nil
}

// SignInGoogle screens the profile before resolving it, so a rejected profile never creates a user.
func (p *Pipeline) SignInGoogle(ctx context.Context, profile providers.Identity) (SessionClaims, error) {
	verdict, err := p.ScreenGoogle(profile)
	if err != nil {
		return SessionClaims{}, err
	}
	if p.resolver == nil {
		return SessionClaims{}, errors.New("auth: identity resolver is not configured")
	}

	user, err := p.resolver.ResolveGoogle(ctx, profile)
	if err != nil {
		return SessionClaims{}, fmt.Errorf("auth: resolve google identity: %w", err)
	}

	return p.Enrich(GooglePrincipal{
		Profile:     profile,
		User:        user,
		AccessToken: profile.Grant.AccessToken,
		LikelyFake:  verdict.LikelyFake(),
	}), nil
}

// SignInPhone accepts a phone principal unconditionally; possession of the OTP is the trust signal.
func (p *Pipeline) SignInPhone(user *models.User, masked, lastFour string) SessionClaims {
	return p.Enrich(PhonePrincipal{User: user, Masked: masked, LastFour: lastFour})
}

// Enrich derives first-login claims from the principal and its user row.
func (p *Pipeline) Enrich(principal Principal) SessionClaims {
	user := principal.Account()
	claims := SessionClaims{Provider: principal.Kind()}
	if user != nil {
		claims.UserID = user.ID
		claims.Name = user.Name
		claims.Email = user.EmailAddress()
		claims.Picture = user.Image
	}

	switch pr := principal.(type) {
	case GooglePrincipal:
		claims.AccessToken = pr.AccessToken
		claims.IsLikelyFake = pr.LikelyFake
		claims.EmailVerified = user.IsEmailVerified()
		claims.NeedsEmailVerification = !claims.EmailVerified
	case PhonePrincipal:
		// Phone possession counts as verification for session purposes.
		claims.PhoneLogin = true
		claims.PhoneMasked = pr.Masked
		claims.PhoneLast4 = pr.LastFour
		claims.EmailVerified = true
		claims.NeedsEmailVerification = false
	}
	return claims
}

// Refresh merges pushed updates into existing claims instead of re-deriving them.
func (p *Pipeline) Refresh(claims SessionClaims, update SessionUpdate) SessionClaims {
	if update.EmailVerified != nil && claims.Provider != KindPhone {
		claims.EmailVerified = *update.EmailVerified
		claims.NeedsEmailVerification = !*update.EmailVerified
	}
	return claims
}

// Sync re-derives row-backed claims from the current user record, keeping the
// provider branch and upstream access token.
func (p *Pipeline) Sync(claims SessionClaims, user *models.User) SessionClaims {
	if user == nil {
		return claims
	}
	claims.Name = user.Name
	claims.Email = user.EmailAddress()
	claims.Picture = user.Image

	switch claims.Provider {
	case KindPhone:
		if user.PhoneNumberLast4 != "" {
			claims.PhoneLast4 = user.PhoneNumberLast4
			claims.PhoneMasked = MaskPhoneLastFour(user.PhoneNumberLast4)
		}
	default:
		claims.EmailVerified = user.IsEmailVerified()
		claims.NeedsEmailVerification = !claims.EmailVerified
		if email := user.EmailAddress(); email != "" {
			claims.IsLikelyFake = p.screener.IsLikelyFake(email)
		}
	}
	return claims
}

// Shape copies token-carried flags onto the external session.
func Shape(claims *SessionClaims) Session {
	if claims == nil {
		return Session{}
	}
	session := Session{
		User: SessionUser{
			ID:                     claims.UserID,
			Name:                   claims.Name,
			Email:                  claims.Email,
			Image:                  claims.Picture,
			EmailVerified:          claims.EmailVerified,
			IsLikelyFake:           claims.IsLikelyFake,
			PhoneLogin:             claims.PhoneLogin,
			PhoneMasked:            claims.PhoneMasked,
			PhoneLast4:             claims.PhoneLast4,
			AccessToken:            claims.AccessToken,
			NeedsEmailVerification: claims.NeedsEmailVerification,
		},
	}
	if claims.ExpiresAt != nil {
		session.Expires = claims.ExpiresAt.Time
	}
	return session
}
