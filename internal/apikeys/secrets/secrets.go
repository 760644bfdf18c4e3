// Package secrets mints and checks raw API keys.
//
// A raw key has the form ick_<prefix>_<secret>. The prefix is stored in the
// clear and indexed so authentication is a single lookup followed by one
// bcrypt comparison.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"ironclad/internal/apikeys/models"
	dErrors "ironclad/pkg/domain-errors"
)

const (
	prefixBytes = 4
	secretBytes = 32
)

// ErrMalformed is returned by Parse for strings that are not raw keys.
var ErrMalformed = errors.New("malformed api key")

// Generate returns a new prefix and secret plus the raw key joining them.
func Generate() (prefix, secret, raw string, err error) {
	p := make([]byte, prefixBytes)
	if _, err := rand.Read(p); err != nil {
		return "", "", "", fmt.Errorf("could not generate key prefix: %w", err)
	}
	s := make([]byte, secretBytes)
	if _, err := rand.Read(s); err != nil {
		return "", "", "", fmt.Errorf("could not generate key secret: %w", err)
	}
	prefix = hex.EncodeToString(p)
	secret = base64.RawURLEncoding.EncodeToString(s)
	return prefix, secret, Format(prefix, secret), nil
}

// Format joins prefix and secret into a raw key.
func Format(prefix, secret string) string {
	return models.RawKeyPrefix + "_" + prefix + "_" + secret
}

// Parse splits a raw key. The secret may itself contain underscores.
func Parse(raw string) (prefix, secret string, err error) {
	parts := strings.SplitN(strings.TrimSpace(raw), "_", 3)
	if len(parts) != 3 || parts[0] != models.RawKeyPrefix || parts[1] == "" || parts[2] == "" {
		return "", "", ErrMalformed
	}
	if _, err := hex.DecodeString(parts[1]); err != nil || len(parts[1]) != 2*prefixBytes {
		return "", "", ErrMalformed
	}
	return parts[1], parts[2], nil
}

// Hash creates a bcrypt hash of secret at the given cost.
func Hash(secret string, cost int) (string, error) {
	if secret == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "secret cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "secret is too long")
		}
		return "", fmt.Errorf("could not hash secret: %w", err)
	}
	return string(hashed), nil
}

// Verify checks a plaintext secret against a bcrypt hash.
func Verify(secret, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeUnauthorized, "invalid api key")
		}
		return fmt.Errorf("could not verify secret: %w", err)
	}
	return nil
}
