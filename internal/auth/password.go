// Package auth covers operator credentials: password hashing, session
// tokens, and the request middleware gating the API.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 200_000
	pbkdf2KeyLen     = 32
	saltLen          = 16
)

// HashPassword derives a fresh salt/hash pair for storage, both base64.
func HashPassword(password string) (saltB64, hashB64 string, err error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", "", fmt.Errorf("generating salt: %w", err)
	}
	hash := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
	return base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash), nil
}

// VerifyPassword re-derives the hash with the stored salt and compares in
// constant time.
func VerifyPassword(password, saltB64, hashB64 string) bool {
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return false
	}
	stored, err := base64.StdEncoding.DecodeString(hashB64)
	if err != nil {
		return false
	}
	derived := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
	return subtle.ConstantTimeCompare(derived, stored) == 1
}
