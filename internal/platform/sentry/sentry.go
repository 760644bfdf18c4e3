// Package sentry reports failures the gateway contains instead of
// propagating: grader outages, purge errors, dropped audit writes.
package sentry

import (
	"context"
	"fmt"
	"time"

	sentrygo "github.com/getsentry/sentry-go"

	"ironclad/internal/platform/config"
)

// Reporter forwards contained errors to Sentry. A Reporter built without a
// DSN is a no-op, as is a nil *Reporter.
type Reporter struct {
	enabled bool
}

// New initializes the Sentry SDK when a DSN is configured.
func New(cfg config.SentryConfig, release string) (*Reporter, error) {
	if cfg.DSN == "" {
		return &Reporter{}, nil
	}
	err := sentrygo.Init(sentrygo.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     release,
	})
	if err != nil {
		return nil, fmt.Errorf("init sentry: %w", err)
	}
	return &Reporter{enabled: true}, nil
}

// Report captures err tagged with the component and request ID. Never pass
// user text in tags.
func (r *Reporter) Report(ctx context.Context, component, requestID string, err error) {
	if r == nil || !r.enabled || err == nil {
		return
	}
	hub := sentrygo.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentrygo.CurrentHub().Clone()
	}
	hub.WithScope(func(scope *sentrygo.Scope) {
		scope.SetTag("component", component)
		if requestID != "" {
			scope.SetTag("request_id", requestID)
		}
		hub.CaptureException(err)
	})
}

// Flush waits for buffered events on shutdown.
func (r *Reporter) Flush(timeout time.Duration) {
	if r == nil || !r.enabled {
		return
	}
	sentrygo.Flush(timeout)
}
