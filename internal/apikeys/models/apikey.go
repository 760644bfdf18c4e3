// Package models holds the API key record shared by the key service, its
// stores and the admin handler.
package models

import (
	"time"

	id "ironclad/pkg/domain"
)

// RawKeyPrefix starts every raw key handed to a calling service.
const RawKeyPrefix = "ick"

// APIKey is a stored restoration credential. The secret itself is never
// stored; only its bcrypt hash.
type APIKey struct {
	ID          id.APIKeyID
	Prefix      string
	SecretHash  string
	ServiceName string
	CreatedAt   time.Time
	LastUsedAt  *time.Time
	UsageCount  int64
	Revoked     bool
	RevokedAt   *time.Time
}

// IsActive reports whether the key may authenticate.
func (k *APIKey) IsActive() bool {
	return k != nil && !k.Revoked
}

// Filter narrows key listings.
type Filter struct {
	ServiceName    string
	IncludeRevoked bool
	Limit          int
	Offset         int
}
