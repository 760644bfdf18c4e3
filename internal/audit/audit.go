// Package audit records every restoration attempt, successful or not.
//
// Records are append-only: each attempt gets a fresh ID, so concurrent
// attempts for the same request never merge or overwrite one another.
package audit

import (
	"context"
	"strings"
	"time"

	"github.com/mssola/useragent"

	id "ironclad/pkg/domain"
)

// Record is one restoration attempt. APIKeyID is nil when the caller could
// not be authenticated.
type Record struct {
	ID             id.AuditRecordID
	RequestID      string
	APIKeyID       *id.APIKeyID
	ServiceName    string
	Timestamp      time.Time
	RedactedText   string
	RestoredText   string
	TokenCount     int
	TokensRestored int
	Success        bool
	ErrorCode      string
	ErrorMessage   string
	ClientIP       string
	UserAgent      string
	ClientAgent    string
}

// Query selects records for the admin API. Results are newest first.
type Query struct {
	ServiceName string
	Limit       int
	Offset      int
}

// Store appends and lists records.
type Store interface {
	Append(ctx context.Context, rec *Record) error
	List(ctx context.Context, q Query) ([]*Record, error)
}

// ClientAgent renders a short display name for a User-Agent header, such as
// "Chrome on macOS" or "python-requests 2.31".
func ClientAgent(userAgent string) string {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return "Unknown Client"
	}
	ua := useragent.New(userAgent)
	name, version := ua.Browser()
	if name == "" {
		return "Unknown Client"
	}
	if ua.Bot() {
		return name + " (bot)"
	}
	if os := ua.OS(); os != "" {
		return name + " on " + os
	}
	if version != "" {
		return name + " " + version
	}
	return name
}
