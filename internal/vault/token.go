// Package vault stores reversible substitution tokens.
//
// Every operation is a single atomic store call (set-with-expiry, get,
// multi-key delete); nothing scans the keyspace. Expiry is the backend's
// job: Redis TTLs, or a read-time check in the memory store.
package vault

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DefaultTTL is how long a token stays restorable.
const DefaultTTL = 24 * time.Hour

// IDLength is the number of base32 characters in a token ID (60 bits).
const IDLength = 12

// PlaceholderPattern matches placeholders embedded in redacted text.
var PlaceholderPattern = regexp.MustCompile(`\[REDACTED_([a-z0-9]+)\]`)

var idEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Token maps one placeholder back to the original text it replaced.
type Token struct {
	ID                 string    `json:"id"`
	Value              string    `json:"value"`
	RequestID          string    `json:"request_id"`
	EntityType         string    `json:"entity_type"`
	Context            string    `json:"context"`
	RestorationAllowed bool      `json:"restoration_allowed"`
	CreatedAt          time.Time `json:"created_at"`
	ExpiresAt          time.Time `json:"expires_at"`
}

// Placeholder is the text substituted for the original value.
func (t *Token) Placeholder() string {
	return Placeholder(t.ID)
}

// Expired reports whether the token is past its expiry at now.
func (t *Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// Placeholder formats the placeholder for a token ID.
func Placeholder(id string) string {
	return "[REDACTED_" + id + "]"
}

// NewTokenID returns IDLength lowercase base32 characters from crypto/rand.
func NewTokenID() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("read random token id: %w", err)
	}
	return strings.ToLower(idEncoding.EncodeToString(b[:]))[:IDLength], nil
}

// ExtractTokenIDs returns the token IDs of all placeholders in text, in
// first-seen order without duplicates.
func ExtractTokenIDs(text string) []string {
	matches := PlaceholderPattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]struct{}, len(matches))
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		ids = append(ids, m[1])
	}
	return ids
}

// TokenSet is the ordered list of tokens created by one redaction call.
// It travels with the verification task and is never returned to clients.
type TokenSet struct {
	RequestID string
	TokenIDs  []string
}

// Vault is the token store.
type Vault interface {
	// Put stores token until ttl elapses on the store's own clock and sets
	// token.ExpiresAt accordingly. A non-positive ttl means DefaultTTL. It
	// fails with sentinel.ErrConflict if the ID is already taken.
	Put(ctx context.Context, token *Token, ttl time.Duration) error
	// Get returns sentinel.ErrNotFound for unknown or expired tokens.
	Get(ctx context.Context, id string) (*Token, error)
	// DeleteMany removes the given tokens and returns how many existed.
	// Deleting absent tokens is not an error.
	DeleteMany(ctx context.Context, ids []string) (int, error)
}
