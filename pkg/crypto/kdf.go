package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey expands secret into a key of the requested length using HKDF-SHA256.
// The info label separates keys derived from the same secret for different purposes.
func DeriveKey(secret []byte, info string, length int) ([]byte, error) {
	if len(secret) == 0 {
		return nil, errors.New("hkdf: secret is required")
	}
	switch length {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("hkdf: key length must be 16, 24, or 32 bytes (got %d)", length)
	}

	reader := hkdf.New(sha256.New, secret, nil, []byte(info))
	key := make([]byte, length)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("hkdf: expand: %w", err)
	}
	return key, nil
}
