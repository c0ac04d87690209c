package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// randomBytes is the entropy used for verifiers, state and nonces.
const randomBytes = 32

// PKCE is an RFC 7636 verifier and its S256 challenge.
type PKCE struct {
	Verifier  string
	Challenge string
}

// NewPKCE generates a fresh verifier and challenge.
func NewPKCE() (PKCE, error) {
	verifier, err := RandomToken()
	if err != nil {
		return PKCE{}, err
	}
	return PKCE{Verifier: verifier, Challenge: S256Challenge(verifier)}, nil
}

// S256Challenge derives the challenge for verifier.
func S256Challenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// RandomToken returns a URL-safe random string.
func RandomToken() (string, error) {
	b := make([]byte, randomBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
