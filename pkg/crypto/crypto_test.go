package crypto

import (
	"bytes"
	"regexp"
	"testing"
)

func TestEncryptDecrypt(t *testing.T) {
	key := bytes.Repeat([]byte{0x1}, 32)
	plaintext := []byte("sensitive data")

	encoded, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}

	decrypted, err := Decrypt(encoded, key)
	if err != nil {
		t.Fatalf("decrypt error: %v", err)
	}

	if !bytes.Equal(plaintext, decrypted) {
		t.Fatalf("expected decrypted plaintext to match original, got %s", decrypted)
	}
}

func TestDecryptRejectsTamperedPayload(t *testing.T) {
	key := bytes.Repeat([]byte{0x2}, 32)
	encoded, err := Encrypt([]byte("payload"), key)
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}

	other := bytes.Repeat([]byte{0x3}, 32)
	if _, err := Decrypt(encoded, other); err == nil {
		t.Fatal("expected decrypt with a different key to fail")
	}
}

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken(32)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	if len(token) == 0 {
		t.Fatal("expected token to be non-empty")
	}
}

func TestGenerateHexToken(t *testing.T) {
	token, err := GenerateHexToken(32)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(token) {
		t.Fatalf("unexpected token format %q", token)
	}
}

func TestGenerateNumericCode(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9]{6}$`)
	for i := 0; i < 200; i++ {
		code, err := GenerateNumericCode(6)
		if err != nil {
			t.Fatalf("code error: %v", err)
		}
		if !pattern.MatchString(code) {
			t.Fatalf("code %q is not six digits", code)
		}
	}

	if _, err := GenerateNumericCode(0); err == nil {
		t.Fatal("expected zero length to be rejected")
	}
}

func TestHMACHexDeterministic(t *testing.T) {
	a := HMACHex([]byte("secret"), "+15551234567")
	b := HMACHex([]byte("secret"), "+15551234567")
	c := HMACHex([]byte("other"), "+15551234567")

	if a != b {
		t.Fatal("expected identical input to produce identical digest")
	}
	if a == c {
		t.Fatal("expected different keys to produce different digests")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(a))
	}
}

func TestDeriveKey(t *testing.T) {
	k1, err := DeriveKey([]byte("session-secret"), "oauth-state", 32)
	if err != nil {
		t.Fatalf("derive error: %v", err)
	}
	k2, err := DeriveKey([]byte("session-secret"), "other-purpose", 32)
	if err != nil {
		t.Fatalf("derive error: %v", err)
	}

	if len(k1) != 32 {
		t.Fatalf("expected 32 byte key, got %d", len(k1))
	}
	if bytes.Equal(k1, k2) {
		t.Fatal("expected distinct info labels to yield distinct keys")
	}

	if _, err := DeriveKey(nil, "x", 32); err == nil {
		t.Fatal("expected empty secret to be rejected")
	}
	if _, err := DeriveKey([]byte("s"), "x", 20); err == nil {
		t.Fatal("expected unsupported length to be rejected")
	}
}
