package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStateCodecRoundTrip(t *testing.T) {
	codec, err := NewStateCodec([]byte("0123456789abcdef0123456789abcdef"), time.Minute, nil)
	require.NoError(t, err)

	token, err := codec.Encode(StatePayload{
		Provider:    "Google",
		CallbackURL: "/dashboard",
		Nonce:       "nonce",
		PKCE:        "verifier",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	payload, err := codec.Decode(token)
	require.NoError(t, err)
	require.Equal(t, "google", payload.Provider)
	require.Equal(t, "/dashboard", payload.CallbackURL)
	require.Equal(t, "nonce", payload.Nonce)
	require.Equal(t, "verifier", payload.PKCE)
}

func TestStateCodecExpired(t *testing.T) {
	current := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	codec, err := NewStateCodec([]byte("0123456789abcdef0123456789abcdef"), time.Minute, func() time.Time {
		return current
	})
	require.NoError(t, err)

	token, err := codec.Encode(StatePayload{Provider: "google", Nonce: "n", PKCE: "p"})
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	_, err = codec.Decode(token)
	require.True(t, errors.Is(err, ErrStateExpired))
}

func TestStateCodecRejectsForeignKey(t *testing.T) {
	a, err := NewStateCodecFromSecret("secret-a", time.Minute, nil)
	require.NoError(t, err)
	b, err := NewStateCodecFromSecret("secret-b", time.Minute, nil)
	require.NoError(t, err)

	token, err := a.Encode(StatePayload{Provider: "google"})
	require.NoError(t, err)

	_, err = b.Decode(token)
	require.True(t, errors.Is(err, ErrStateInvalid))

	_, err = a.Decode("")
	require.True(t, errors.Is(err, ErrStateInvalid))
}

func TestNewStateCodecValidatesKeyLength(t *testing.T) {
	_, err := NewStateCodec([]byte("short"), time.Minute, nil)
	require.Error(t, err)
}

func TestNewFlowSecrets(t *testing.T) {
	secrets, err := NewFlowSecrets()
	require.NoError(t, err)
	require.NotEmpty(t, secrets.Nonce)
	require.NotEmpty(t, secrets.Verifier)
	require.Equal(t, PKCEChallenge(secrets.Verifier), secrets.Challenge)

	other, err := NewFlowSecrets()
	require.NoError(t, err)
	require.NotEqual(t, secrets.Verifier, other.Verifier)
}
