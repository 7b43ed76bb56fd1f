package oauthflow

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"

	"github.com/google/uuid"
)

// pkceParams is a single authorization attempt's PKCE verifier/challenge
// pair plus its anti-CSRF state value.
type pkceParams struct {
	Verifier  string
	Challenge string
	State     string
}

func newPKCEParams() (pkceParams, error) {
	verifier, err := randomURLSafeString(32)
	if err != nil {
		return pkceParams{}, err
	}
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])
	return pkceParams{
		Verifier:  verifier,
		Challenge: challenge,
		State:     uuid.NewString(),
	}, nil
}

func randomURLSafeString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
