package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/twentyfive/authgate/pkg/crypto"
)

var (
	// ErrStateExpired is returned when the OAuth round trip took longer than the state lifetime.
	ErrStateExpired = errors.New("oauth state: expired")
	// ErrStateInvalid is returned for tampered, truncated or foreign state values.
	ErrStateInvalid = errors.New("oauth state: invalid")
)

// StateCodec encodes and decodes the encrypted state carried through the OAuth redirect.
type StateCodec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// StatePayload captures data required to validate the callback and resume the login flow.
type StatePayload struct {
	Provider    string    `json:"p"`
	CallbackURL string    `json:"r"`
	Nonce       string    `json:"n"`
	PKCE        string    `json:"k"`
	IssuedAt    time.Time `json:"iat"`
}

// NewStateCodec constructs a StateCodec using the provided symmetric encryption key and lifetime.
func NewStateCodec(key []byte, ttl time.Duration, now func() time.Time) (*StateCodec, error) {
	length := len(key)
	if length != 16 && length != 24 && length != 32 {
		return nil, fmt.Errorf("oauth state: key must be 16, 24, or 32 bytes, got %d", length)
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &StateCodec{
		key: key,
		ttl: ttl,
		now: now,
	}, nil
}

// NewStateCodecFromSecret derives the codec key from the session secret.
func NewStateCodecFromSecret(secret string, ttl time.Duration, now func() time.Time) (*StateCodec, error) {
	key, err := crypto.DeriveKey([]byte(secret), "authgate oauth state", 32)
	if err != nil {
		return nil, fmt.Errorf("oauth state: derive key: %w", err)
	}
	return NewStateCodec(key, ttl, now)
}

// Encode encrypts the supplied payload into a compact state string.
func (c *StateCodec) Encode(payload StatePayload) (string, error) {
	payload.Provider = strings.ToLower(strings.TrimSpace(payload.Provider))
	if payload.Provider == "" {
		return "", errors.New("oauth state: provider is required")
	}
	payload.IssuedAt = c.now().UTC()

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("oauth state: marshal payload: %w", err)
	}

	encoded, err := crypto.Encrypt(raw, c.key)
	if err != nil {
		return "", fmt.Errorf("oauth state: encrypt payload: %w", err)
	}

	return encoded, nil
}

// Decode decrypts the state string back into a payload while enforcing expiry.
func (c *StateCodec) Decode(token string) (StatePayload, error) {
	var payload StatePayload
	if strings.TrimSpace(token) == "" {
		return payload, ErrStateInvalid
	}

	raw, err := crypto.Decrypt(token, c.key)
	if err != nil {
		return payload, ErrStateInvalid
	}

	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, ErrStateInvalid
	}

	if payload.Provider == "" || payload.IssuedAt.IsZero() {
		return payload, ErrStateInvalid
	}

	if c.now().UTC().After(payload.IssuedAt.Add(c.ttl)) {
		return payload, ErrStateExpired
	}

	return payload, nil
}
