package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/twentyfive/authgate/pkg/crypto"
)

// ErrMissingSecret is returned when a hashing secret is not configured.
var ErrMissingSecret = errors.New("auth: secret is not configured")

// Hasher computes deterministic keyed hashes so phone numbers and OTP codes
// can be compared without storing plaintext.
type Hasher struct {
	key []byte
}

// NewHasher builds a hasher for the named secret. A blank secret is a
// configuration error and must abort start-up.
func NewHasher(name, secret string) (*Hasher, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("%w: %s is required", ErrMissingSecret, name)
	}
	return &Hasher{key: []byte(secret)}, nil
}

// Hash returns the lowercase hex HMAC-SHA256 of value.
func (h *Hasher) Hash(value string) string {
	return crypto.HMACHex(h.key, value)
}
