package testutil

import (
	"net/http"
	"time"

	"ironclad/pkg/requestcontext"
)

// WithClient adds client IP and User-Agent to the request context.
// This simulates what the metadata middleware would do.
func WithClient(req *http.Request, ip, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, userAgent))
}

// WithRequestID adds a request ID to the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}

// WithRequestTime pins the request-scoped clock.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}

// WithAPIKey sets the restoration API key header.
func WithAPIKey(req *http.Request, rawKey string) *http.Request {
	req.Header.Set("X-API-Key", rawKey)
	return req
}
