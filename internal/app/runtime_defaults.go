package app

import (
	"fmt"
	"strings"

	"github.com/twentyfive/authgate/pkg/crypto"
)

const sessionSecretBytes = 48

// ApplyRuntimeDefaults fills the session secret outside production so a
// developer can start the server without one. Sessions then do not survive a
// restart. It returns the generated keys so callers can log the event without
// exposing values.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)
	if cfg.IsProduction() {
		return generated, nil
	}

	if strings.TrimSpace(cfg.Auth.Session.Secret) == "" {
		secret, err := crypto.GenerateToken(sessionSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
		cfg.Auth.Session.Secret = secret
		generated["auth.session.secret"] = true
	}

	return generated, nil
}
