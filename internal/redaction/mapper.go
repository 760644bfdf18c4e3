// Package redaction rewrites text by replacing policy-approved entity spans
// with vault-backed placeholders.
package redaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"ironclad/internal/detector"
	"ironclad/internal/policy"
	"ironclad/internal/vault"
	id "ironclad/pkg/domain"
	dErrors "ironclad/pkg/domain-errors"
	"ironclad/pkg/platform/sentinel"
	"ironclad/pkg/requestcontext"
)

const maxIDAttempts = 3

var tracer = otel.Tracer("ironclad/internal/redaction")

// Redacted describes one issued token without its original value.
type Redacted struct {
	TokenID    string  `json:"token_id"`
	EntityType string  `json:"entity_type"`
	Confidence float64 `json:"confidence"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
}

// Result of a successful redaction. Tokens is handed to verification and
// never returned to clients.
type Result struct {
	RequestID    id.RequestID
	RedactedText string
	Redacted     []Redacted
	Tokens       vault.TokenSet
	Summary      Summary
}

// Mapper issues tokens and rewrites text.
type Mapper struct {
	vault  vault.Vault
	ttl    time.Duration
	logger *slog.Logger
	newID  func() (string, error)
}

type Option func(*Mapper)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Mapper) {
		m.logger = logger
	}
}

// WithTTL sets token lifetime. Defaults to vault.DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(m *Mapper) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithIDGenerator replaces the token ID source (tests).
func WithIDGenerator(gen func() (string, error)) Option {
	return func(m *Mapper) {
		if gen != nil {
			m.newID = gen
		}
	}
}

func New(v vault.Vault, opts ...Option) *Mapper {
	m := &Mapper{
		vault:  v,
		ttl:    vault.DefaultTTL,
		logger: slog.Default(),
		newID:  vault.NewTokenID,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Redact replaces the retained entity spans in source with placeholders.
//
// Tokens are written to the vault before Redact returns. The call is
// all-or-nothing: if any write fails the tokens already written are deleted
// (best effort) and a storage_unavailable error is returned with no text.
func (m *Mapper) Redact(ctx context.Context, source string, entities []detector.Entity, decision policy.Decision) (*Result, error) {
	ctx, span := tracer.Start(ctx, "redaction.Redact")
	defer span.End()

	requestID := id.NewRequestID()
	spans := Dedupe(entities, len(source))
	span.SetAttributes(
		attribute.String("request_id", requestID.String()),
		attribute.String("policy.context", decision.Context),
		attribute.Int("entities.retained", len(spans)),
	)

	now := requestcontext.Now(ctx)
	tokens := make([]*vault.Token, 0, len(spans))
	written := make([]string, 0, len(spans))
	for _, e := range spans {
		tok := &vault.Token{
			Value:              source[e.Start:e.End],
			RequestID:          requestID.String(),
			EntityType:         e.Type,
			Context:            decision.Context,
			RestorationAllowed: decision.RestorationAllowed,
			CreatedAt:          now,
		}
		if err := m.put(ctx, tok); err != nil {
			m.rollback(ctx, requestID, written)
			span.RecordError(err)
			span.SetStatus(codes.Error, "vault write failed")
			m.logger.ErrorContext(ctx, "token vault write failed",
				"request_id", requestID.String(),
				"tokens_written", len(written),
				"error", err,
			)
			return nil, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "token vault unavailable")
		}
		written = append(written, tok.ID)
		tokens = append(tokens, tok)
	}

	redacted := make([]Redacted, len(spans))
	for i, e := range spans {
		redacted[i] = Redacted{
			TokenID:    tokens[i].ID,
			EntityType: e.Type,
			Confidence: e.Confidence,
			Start:      e.Start,
			End:        e.End,
		}
	}

	return &Result{
		RequestID:    requestID,
		RedactedText: rewrite(source, spans, tokens),
		Redacted:     redacted,
		Tokens:       vault.TokenSet{RequestID: requestID.String(), TokenIDs: written},
		Summary:      Summarize(spans),
	}, nil
}

// put assigns a fresh ID, retrying on the rare collision with a live token.
func (m *Mapper) put(ctx context.Context, tok *vault.Token) error {
	var lastErr error
	for range maxIDAttempts {
		tokenID, err := m.newID()
		if err != nil {
			return err
		}
		tok.ID = tokenID
		err = m.vault.Put(ctx, tok, m.ttl)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("token id collision after %d attempts: %w", maxIDAttempts, lastErr)
}

func (m *Mapper) rollback(ctx context.Context, requestID id.RequestID, written []string) {
	if len(written) == 0 {
		return
	}
	// The request context may already be cancelled; cleanup still runs.
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := m.vault.DeleteMany(cleanupCtx, written); err != nil {
		m.logger.WarnContext(ctx, "rollback of partially written tokens failed",
			"request_id", requestID.String(),
			"tokens", len(written),
			"error", err,
		)
	}
}

// rewrite substitutes placeholders from the last span to the first so
// earlier offsets stay valid. spans must be sorted ascending and disjoint.
func rewrite(source string, spans []detector.Entity, tokens []*vault.Token) string {
	out := source
	for i := len(spans) - 1; i >= 0; i-- {
		e := spans[i]
		out = out[:e.Start] + tokens[i].Placeholder() + out[e.End:]
	}
	return out
}

// Dedupe drops invalid spans and resolves overlaps. Among overlapping spans
// the highest confidence wins, then the longer span, then the earlier start.
// The result is sorted by start offset and contains no overlaps.
func Dedupe(entities []detector.Entity, textLen int) []detector.Entity {
	candidates := make([]detector.Entity, 0, len(entities))
	for _, e := range entities {
		if e.Valid(textLen) {
			candidates = append(candidates, e)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Len() != b.Len() {
			return a.Len() > b.Len()
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return strings.Compare(a.Type, b.Type) < 0
	})

	kept := make([]detector.Entity, 0, len(candidates))
	for _, c := range candidates {
		overlaps := false
		for _, k := range kept {
			if c.Start < k.End && k.Start < c.End {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, c)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}
