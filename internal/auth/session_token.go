package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/twentyfive/authgate/pkg/crypto"
)

// DefaultSessionTTL defines the fallback validity period for session tokens.
const DefaultSessionTTL = 30 * 24 * time.Hour

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "authgate.session-token"

// SessionTokenConfig bundles the configuration required to build a SessionTokenService.
type SessionTokenConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
	Clock  func() time.Time
}

// SessionClaims are the claims carried by the session token. The JSON names
// are consumed by other services and must stay stable.
type SessionClaims struct {
	UserID   string `json:"uid"`
	Provider Kind   `json:"provider"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Picture  string `json:"picture,omitempty"`

	EmailVerified          bool   `json:"emailVerified"`
	IsLikelyFake           bool   `json:"isLikelyFake,omitempty"`
	PhoneLogin             bool   `json:"phoneLogin,omitempty"`
	PhoneMasked            string `json:"phoneMasked,omitempty"`
	PhoneLast4             string `json:"phoneLast4,omitempty"`
	AccessToken            string `json:"accessToken,omitempty"`
	NeedsEmailVerification bool   `json:"needsEmailVerification,omitempty"`

	jwt.RegisteredClaims
}

// SessionTokenService issues and validates signed session tokens. The upstream
// OAuth access token is sealed with AES-GCM before signing since JWT payloads
// are only encoded.
type SessionTokenService struct {
	secret  []byte
	sealKey []byte
	issuer  string
	ttl     time.Duration
	now     func() time.Time
}

// NewSessionTokenService constructs a SessionTokenService instance when provided with the required configuration.
func NewSessionTokenService(cfg SessionTokenConfig) (*SessionTokenService, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("%w: session secret", ErrMissingSecret)
	}

	sealKey, err := crypto.DeriveKey([]byte(cfg.Secret), "authgate session access token", 32)
	if err != nil {
		return nil, fmt.Errorf("session token: derive seal key: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &SessionTokenService{
		secret:  []byte(cfg.Secret),
		sealKey: sealKey,
		issuer:  cfg.Issuer,
		ttl:     ttl,
		now:     now,
	}, nil
}

// TTL returns the configured token lifetime.
func (s *SessionTokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs the claims, stamping subject, issuer and validity window.
func (s *SessionTokenService) Issue(claims SessionClaims) (string, time.Time, error) {
	if claims.UserID == "" {
		return "", time.Time{}, errors.New("session token: user id is required")
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.UserID,
		Issuer:    s.issuer,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}

	if claims.AccessToken != "" {
		sealed, err := crypto.Encrypt([]byte(claims.AccessToken), s.sealKey)
		if err != nil {
			return "", time.Time{}, fmt.Errorf("session token: seal access token: %w", err)
		}
		claims.AccessToken = sealed
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("session token: sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// Validate parses and validates a signed token, returning the session claims.
func (s *SessionTokenService) Validate(tokenString string) (*SessionClaims, error) {
	if tokenString == "" {
		return nil, errors.New("session token: token string is empty")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)

	var claims SessionClaims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("session token: parse token: %w", err)
	}

	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, errors.New("session token: invalid issuer")
	}

	if claims.UserID == "" {
		return nil, errors.New("session token: missing user id claim")
	}

	if claims.AccessToken != "" {
		raw, err := crypto.Decrypt(claims.AccessToken, s.sealKey)
		if err != nil {
			return nil, fmt.Errorf("session token: open access token: %w", err)
		}
		claims.AccessToken = string(raw)
	}

	return &claims, nil
}
