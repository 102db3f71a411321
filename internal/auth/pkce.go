package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// randomBytes is the entropy for PKCE verifiers and state values.
// 32 bytes encodes to 43 base64url characters, which clears the
// 43-character minimum RFC 7636 puts on verifiers.
const randomBytes = 32

// pkcePair holds the verifier kept locally and the S256 challenge sent
// on the authorization request.
type pkcePair struct {
	Verifier  string
	Challenge string
}

// newPKCEPair generates a fresh verifier and its S256 challenge.
func newPKCEPair() (*pkcePair, error) {
	verifier, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("generate PKCE verifier: %w", err)
	}
	sum := sha256.Sum256([]byte(verifier))
	return &pkcePair{
		Verifier:  verifier,
		Challenge: base64.RawURLEncoding.EncodeToString(sum[:]),
	}, nil
}

// newState generates the CSRF state parameter binding the callback to
// this flow.
func newState() (string, error) {
	state, err := randomToken()
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return state, nil
}

func randomToken() (string, error) {
	buf := make([]byte, randomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
