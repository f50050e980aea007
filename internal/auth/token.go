package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// NewSessionToken returns a 32-byte random token in URL-safe base64.
func NewSessionToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
