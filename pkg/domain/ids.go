// Package domain holds typed identifiers shared across gateway modules.
//
// Typed IDs keep a request ID from being passed where an API key ID is
// expected. Construct them with the Parse* functions at trust boundaries;
// direct conversion from uuid.UUID is reserved for code that minted the value.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "ironclad/pkg/domain-errors"
)

// RequestID identifies one redaction or restoration call end to end.
type RequestID uuid.UUID

// APIKeyID identifies a stored API key record (never the raw key).
type APIKeyID uuid.UUID

// AuditRecordID identifies one restoration audit record.
type AuditRecordID uuid.UUID

const maxIDLength = 64

func parseUUID(kind, s string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return parsed, nil
}

// NewRequestID mints a fresh request ID.
func NewRequestID() RequestID { return RequestID(uuid.New()) }

// ParseRequestID validates an external request ID.
func ParseRequestID(s string) (RequestID, error) {
	u, err := parseUUID("request id", s)
	return RequestID(u), err
}

func (id RequestID) String() string { return uuid.UUID(id).String() }
func (id RequestID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// NewAPIKeyID mints a fresh API key ID.
func NewAPIKeyID() APIKeyID { return APIKeyID(uuid.New()) }

// ParseAPIKeyID validates an external API key ID.
func ParseAPIKeyID(s string) (APIKeyID, error) {
	u, err := parseUUID("api key id", s)
	return APIKeyID(u), err
}

func (id APIKeyID) String() string { return uuid.UUID(id).String() }
func (id APIKeyID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// NewAuditRecordID mints a fresh audit record ID. Every restoration attempt
// gets its own, so concurrent attempts never collide.
func NewAuditRecordID() AuditRecordID { return AuditRecordID(uuid.New()) }

// ParseAuditRecordID validates an external audit record ID.
func ParseAuditRecordID(s string) (AuditRecordID, error) {
	u, err := parseUUID("audit record id", s)
	return AuditRecordID(u), err
}

func (id AuditRecordID) String() string { return uuid.UUID(id).String() }
func (id AuditRecordID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
