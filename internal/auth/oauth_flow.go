package auth

import (
	"fmt"

	"golang.org/x/oauth2"

	"github.com/twentyfive/authgate/pkg/crypto"
)

// FlowSecrets holds the per-login values bound into the OAuth round trip.
type FlowSecrets struct {
	Nonce     string
	Verifier  string
	Challenge string
}

// NewFlowSecrets produces a nonce plus a PKCE verifier and its S256 challenge.
func NewFlowSecrets() (FlowSecrets, error) {
	nonce, err := crypto.GenerateToken(24)
	if err != nil {
		return FlowSecrets{}, fmt.Errorf("oauth: generate nonce: %w", err)
	}

	verifier := oauth2.GenerateVerifier()
	return FlowSecrets{
		Nonce:     nonce,
		Verifier:  verifier,
		Challenge: PKCEChallenge(verifier),
	}, nil
}

// PKCEChallenge computes the S256 challenge for a verifier.
func PKCEChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}
