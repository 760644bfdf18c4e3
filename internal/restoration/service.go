// Package restoration reverses redaction for authenticated callers,
// subject to the restoration flag frozen on each token, and audits every
// attempt.
package restoration

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ironclad/internal/apikeys/models"
	"ironclad/internal/audit"
	"ironclad/internal/platform/metrics"
	"ironclad/internal/vault"
	id "ironclad/pkg/domain"
	dErrors "ironclad/pkg/domain-errors"
	"ironclad/pkg/platform/sentinel"
	"ironclad/pkg/requestcontext"
)

var tracer = otel.Tracer("ironclad/internal/restoration")

// Authenticator resolves a raw API key to an active key.
type Authenticator interface {
	Authenticate(ctx context.Context, rawKey string) (*models.APIKey, error)
}

// TokenReader is the read side of the vault.
type TokenReader interface {
	Get(ctx context.Context, id string) (*vault.Token, error)
}

// AuditWriter appends audit records.
type AuditWriter interface {
	Append(ctx context.Context, rec *audit.Record) error
}

// Result of a successful restoration.
type Result struct {
	RequestID      string
	OriginalText   string
	TokensFound    int
	TokensRestored int
	Unresolved     []string
	Partial        bool
	AuditRecordID  id.AuditRecordID
}

type Service struct {
	auth    Authenticator
	tokens  TokenReader
	audit   AuditWriter
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(auth Authenticator, tokens TokenReader, auditLog AuditWriter, opts ...Option) *Service {
	s := &Service{
		auth:   auth,
		tokens: tokens,
		audit:  auditLog,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore replaces every resolvable placeholder in redactedText with its
// original value.
//
// Placeholders whose tokens expired or were purged stay in the text and are
// listed in Unresolved. A single resolvable token with restoration disabled
// fails the whole call; no partially restored text is ever returned.
// An audit record is written on every path. On the success path a failed
// audit write fails the call, so original values are never released
// unrecorded.
func (s *Service) Restore(ctx context.Context, redactedText, rawKey string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "restoration.Restore")
	defer span.End()

	rec := newRecord(ctx, redactedText)
	requestID := rec.RequestID
	tokenIDs := vault.ExtractTokenIDs(redactedText)
	span.SetAttributes(
		attribute.String("request_id", requestID),
		attribute.Int("tokens.found", len(tokenIDs)),
	)

	key, err := s.auth.Authenticate(ctx, rawKey)
	if err != nil {
		return nil, s.fail(ctx, rec, err, "unauthorized")
	}
	keyID := key.ID
	rec.APIKeyID = &keyID
	rec.ServiceName = key.ServiceName

	if len(tokenIDs) == 0 {
		return nil, s.fail(ctx, rec, dErrors.New(dErrors.CodeNoTokensFound, "no redaction tokens in text"), "no_tokens")
	}

	values := make(map[string]string, len(tokenIDs))
	var unresolved []string
	for _, tokenID := range tokenIDs {
		tok, err := s.tokens.Get(ctx, tokenID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				unresolved = append(unresolved, tokenID)
				continue
			}
			return nil, s.fail(ctx, rec,
				dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "token vault unavailable"), "storage_unavailable")
		}
		if !tok.RestorationAllowed {
			return nil, s.fail(ctx, rec,
				dErrors.New(dErrors.CodePolicyForbidsRestoration, "policy forbids restoration of this text"), "forbidden")
		}
		values[tokenID] = tok.Value
	}
	resolved := len(values)
	if resolved == 0 {
		return nil, s.fail(ctx, rec,
			dErrors.New(dErrors.CodeNoTokensFound, "no tokens could be resolved; they may have expired or been purged"), "no_tokens")
	}

	restored := substitute(redactedText, values)
	rec.Success = true
	rec.RestoredText = restored
	rec.TokensRestored = resolved
	if err := s.audit.Append(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "audit write failed; withholding restored text",
			"request_id", requestID,
			"api_key_id", keyID.String(),
			"error", err,
		)
		s.metrics.IncRestore("audit_failed")
		span.SetStatus(codes.Error, "audit write failed")
		return nil, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "audit log unavailable")
	}

	outcome := "success"
	if len(unresolved) > 0 {
		outcome = "partial"
	}
	s.metrics.IncRestore(outcome)
	s.logger.InfoContext(ctx, "text restored",
		"request_id", requestID,
		"service_name", key.ServiceName,
		"tokens_found", len(tokenIDs),
		"tokens_restored", resolved,
		"unresolved", len(unresolved),
	)
	return &Result{
		RequestID:      requestID,
		OriginalText:   restored,
		TokensFound:    len(tokenIDs),
		TokensRestored: resolved,
		Unresolved:     unresolved,
		Partial:        len(unresolved) > 0,
		AuditRecordID:  rec.ID,
	}, nil
}

// RejectMalformed audits an attempt whose request body could not be read and
// returns the error to report. The key is still authenticated so the record
// is attributed; an invalid key is reported ahead of cause.
func (s *Service) RejectMalformed(ctx context.Context, rawKey string, cause error) error {
	ctx, span := tracer.Start(ctx, "restoration.RejectMalformed")
	defer span.End()

	rec := newRecord(ctx, "")
	key, err := s.auth.Authenticate(ctx, rawKey)
	if err != nil {
		return s.fail(ctx, rec, err, "unauthorized")
	}
	keyID := key.ID
	rec.APIKeyID = &keyID
	rec.ServiceName = key.ServiceName
	return s.fail(ctx, rec, cause, "bad_request")
}

// substitute replaces placeholders in one pass so restored values are never
// scanned again.
func substitute(text string, values map[string]string) string {
	return vault.PlaceholderPattern.ReplaceAllStringFunc(text, func(placeholder string) string {
		m := vault.PlaceholderPattern.FindStringSubmatch(placeholder)
		if v, ok := values[m[1]]; ok {
			return v
		}
		return placeholder
	})
}

func newRecord(ctx context.Context, redactedText string) *audit.Record {
	requestID := requestcontext.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	userAgent := requestcontext.UserAgent(ctx)
	return &audit.Record{
		ID:           id.NewAuditRecordID(),
		RequestID:    requestID,
		Timestamp:    requestcontext.Now(ctx),
		RedactedText: redactedText,
		TokenCount:   len(vault.ExtractTokenIDs(redactedText)),
		ClientIP:     requestcontext.ClientIP(ctx),
		UserAgent:    userAgent,
		ClientAgent:  audit.ClientAgent(userAgent),
	}
}

// fail audits a rejected attempt and returns cause. An audit failure here
// is logged only; the caller still sees the original error.
func (s *Service) fail(ctx context.Context, rec *audit.Record, cause error, outcome string) error {
	rec.Success = false
	rec.ErrorCode = string(dErrors.CodeOf(cause))
	rec.ErrorMessage = dErrors.MessageOf(cause)
	if err := s.audit.Append(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "audit write failed for rejected restoration",
			"request_id", rec.RequestID,
			"error_code", rec.ErrorCode,
			"error", err,
		)
	}
	s.metrics.IncRestore(outcome)
	s.logger.WarnContext(ctx, "restoration rejected",
		"request_id", rec.RequestID,
		"service_name", rec.ServiceName,
		"error_code", rec.ErrorCode,
	)
	trace.SpanFromContext(ctx).SetStatus(codes.Error, rec.ErrorCode)
	return cause
}
