// Package gateway runs the synchronous redact pipeline: detect, apply
// policy, tokenize, then hand the request's token set to verification.
package gateway

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"ironclad/internal/detector"
	"ironclad/internal/platform/metrics"
	"ironclad/internal/policy"
	"ironclad/internal/redaction"
	"ironclad/internal/verification"
	dErrors "ironclad/pkg/domain-errors"
	"ironclad/pkg/requestcontext"
)

var tracer = otel.Tracer("ironclad/internal/gateway")

// Audit status reported to redact callers.
const (
	AuditQueued  = "queued"
	AuditSkipped = "skipped"
)

// PolicyResolver applies a policy context to detected entities.
type PolicyResolver interface {
	Resolve(ctx context.Context, contextName string, overrides policy.Overrides, entities []detector.Entity) (policy.Decision, []detector.Entity, error)
	Contexts() []policy.Context
}

// Tokenizer issues vault tokens and rewrites the text.
type Tokenizer interface {
	Redact(ctx context.Context, source string, entities []detector.Entity, decision policy.Decision) (*redaction.Result, error)
}

// Submitter accepts verification tasks without blocking.
type Submitter interface {
	Submit(ctx context.Context, task verification.Task) bool
}

// Outcome is what a redact call returns to the caller. The token set stays
// with verification.
type Outcome struct {
	RequestID        string
	RedactedText     string
	Redacted         []redaction.Redacted
	Summary          redaction.Summary
	Decision         policy.Decision
	EntitiesDetected int
	EntitiesFiltered int
	AuditStatus      string
}

type Service struct {
	detector detector.Detector
	policy   PolicyResolver
	mapper   Tokenizer
	verifier Submitter
	logger   *slog.Logger
	metrics  *metrics.Metrics
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

func New(det detector.Detector, resolver PolicyResolver, mapper Tokenizer, verifier Submitter, opts ...Option) *Service {
	s := &Service{
		detector: det,
		policy:   resolver,
		mapper:   mapper,
		verifier: verifier,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Redact returns as soon as the tokens are stored; the leak check runs
// later on the dispatcher and never delays or fails this call.
func (s *Service) Redact(ctx context.Context, text, contextName string, overrides policy.Overrides) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "gateway.Redact")
	defer span.End()
	start := time.Now()

	entities, err := s.detector.Detect(ctx, text)
	if err != nil {
		span.SetStatus(codes.Error, "detector failed")
		s.logger.ErrorContext(ctx, "entity detection failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeDetectorUnavailable, "entity detection unavailable")
	}

	decision, retained, err := s.policy.Resolve(ctx, contextName, overrides, entities)
	if err != nil {
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}

	res, err := s.mapper.Redact(ctx, text, retained, decision)
	if err != nil {
		span.SetStatus(codes.Error, "redaction failed")
		return nil, err
	}

	task := verification.Task{
		RequestID:     res.RequestID.String(),
		RedactedText:  res.RedactedText,
		TokenIDs:      res.Tokens.TokenIDs,
		PolicyContext: decision.Context,
		SubmittedAt:   requestcontext.Now(ctx),
	}
	status := AuditSkipped
	if s.verifier.Submit(ctx, task) {
		status = AuditQueued
	}

	types := make([]string, 0, len(res.Redacted))
	for _, r := range res.Redacted {
		types = append(types, r.EntityType)
	}
	s.metrics.IncRedaction(decision.Context, types, res.Summary.Scores, time.Since(start))
	span.SetAttributes(
		attribute.String("request_id", task.RequestID),
		attribute.Int("entities.detected", len(entities)),
		attribute.Int("tokens.issued", len(res.Redacted)),
		attribute.String("audit_status", status),
	)
	s.logger.InfoContext(ctx, "text redacted",
		"request_id", task.RequestID,
		"http_request_id", requestcontext.RequestID(ctx),
		"policy_context", decision.Context,
		"entities_detected", len(entities),
		"tokens_issued", len(res.Redacted),
		"restoration_allowed", decision.RestorationAllowed,
		"audit_status", status,
	)

	return &Outcome{
		RequestID:        task.RequestID,
		RedactedText:     res.RedactedText,
		Redacted:         res.Redacted,
		Summary:          res.Summary,
		Decision:         decision,
		EntitiesDetected: len(entities),
		EntitiesFiltered: len(entities) - len(retained),
		AuditStatus:      status,
	}, nil
}

// Contexts lists the registered policy contexts.
func (s *Service) Contexts() []policy.Context {
	return s.policy.Contexts()
}
