// Package verification runs the out-of-band leak check on each redaction and
// applies a tiered action (allow, log, alert, purge) to that request's tokens.
//
// Failures here never reach the caller of the original redaction; they end
// in ALLOWED with Skipped set and are visible only in logs and metrics.
package verification

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"ironclad/internal/grader"
	"ironclad/internal/platform/metrics"
	"ironclad/internal/platform/sentry"
	"ironclad/internal/vault"
)

const DefaultGraderTimeout = 30 * time.Second

var tracer = otel.Tracer("ironclad/internal/verification")

// Orchestrator verifies one task at a time; it is safe for concurrent use
// by the dispatcher's workers.
type Orchestrator struct {
	grader     grader.Grader
	vault      vault.Vault
	thresholds Thresholds
	timeout    time.Duration
	alerts     AlertSink
	results    ResultStore
	logger     *slog.Logger
	metrics    *metrics.Metrics
	reporter   *sentry.Reporter
	now        func() time.Time
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func WithAlertSink(sink AlertSink) Option {
	return func(o *Orchestrator) {
		if sink != nil {
			o.alerts = sink
		}
	}
}

func WithResultStore(store ResultStore) Option {
	return func(o *Orchestrator) {
		o.results = store
	}
}

func WithReporter(r *sentry.Reporter) Option {
	return func(o *Orchestrator) {
		o.reporter = r
	}
}

// WithGraderTimeout bounds each grader call.
func WithGraderTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func NewOrchestrator(g grader.Grader, v vault.Vault, thresholds Thresholds, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		grader:     g,
		vault:      v,
		thresholds: thresholds,
		timeout:    DefaultGraderTimeout,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.alerts == nil {
		o.alerts = NewLogSink(o.logger)
	}
	return o
}

// Verify runs the state machine for task and returns its terminal result.
func (o *Orchestrator) Verify(ctx context.Context, task Task) Result {
	ctx, span := tracer.Start(ctx, "verification.Verify")
	defer span.End()
	span.SetAttributes(
		attribute.String("request_id", task.RequestID),
		attribute.Int("tokens", len(task.TokenIDs)),
	)

	res := Result{
		RequestID:  task.RequestID,
		State:      StatePending,
		TokenCount: len(task.TokenIDs),
		StartedAt:  o.now(),
	}

	if len(task.TokenIDs) == 0 {
		o.skip(ctx, &res, SkipNoTokens, nil)
		return o.finish(ctx, res)
	}

	gradeCtx, cancel := context.WithTimeout(ctx, o.timeout)
	start := o.now()
	assessment := o.grader.Assess(gradeCtx, task.RedactedText)
	cancel()
	o.metrics.ObserveGraderLatency(o.now().Sub(start))

	switch a := assessment.(type) {
	case grader.Assessed:
		score := a.Score
		res.Score = &score
		res.Rationale = a.Rationale
		res.State = StateScored
		res.Tier = o.thresholds.Tier(score)
		o.apply(ctx, task, &res)
	case grader.ParseFailed:
		o.metrics.IncGraderFailure("malformed")
		o.skip(ctx, &res, SkipGraderMalformed, a.Err)
	case grader.Unreachable:
		reason := SkipGraderUnreachable
		switch {
		case errors.Is(a.Err, grader.ErrCircuitOpen):
			reason = SkipCircuitOpen
		case errors.Is(a.Err, context.DeadlineExceeded):
			reason = SkipGraderTimeout
		}
		o.metrics.IncGraderFailure(reason)
		o.skip(ctx, &res, reason, a.Err)
	default:
		o.skip(ctx, &res, SkipGraderMalformed, nil)
	}
	span.SetAttributes(attribute.String("verification.state", string(res.State)))
	return o.finish(ctx, res)
}

// skip ends verification in ALLOWED without touching the vault.
func (o *Orchestrator) skip(ctx context.Context, res *Result, reason string, cause error) {
	res.State = StateAllowed
	res.Tier = StateAllowed
	res.Skipped = true
	res.SkipReason = reason
	if cause == nil {
		return
	}
	o.logger.WarnContext(ctx, "verification skipped",
		"request_id", res.RequestID,
		"reason", reason,
		"error", cause,
	)
	if reason != SkipCircuitOpen {
		o.reporter.Report(ctx, "verification.grader", res.RequestID, cause)
	}
}

func (o *Orchestrator) apply(ctx context.Context, task Task, res *Result) {
	res.State = res.Tier
	switch res.Tier {
	case StateAllowed:
	case StateLogged:
		o.logger.InfoContext(ctx, "verification flagged possible leak",
			"request_id", task.RequestID,
			"score", *res.Score,
			"rationale", res.Rationale,
		)
	case StateAlerted:
		o.logger.WarnContext(ctx, "verification alert",
			"request_id", task.RequestID,
			"score", *res.Score,
		)
		o.alert(ctx, task, res, 0)
	case StatePurged:
		n := o.purge(ctx, task, res)
		o.alert(ctx, task, res, n)
	}
}

// purge deletes exactly the task's tokens. Deleting tokens that are already
// gone is not an error, so a retried purge converges on the same state.
func (o *Orchestrator) purge(ctx context.Context, task Task, res *Result) int {
	n, err := o.vault.DeleteMany(ctx, task.TokenIDs)
	if err != nil {
		res.PurgeError = err.Error()
		o.logger.ErrorContext(ctx, "purge failed",
			"request_id", task.RequestID,
			"tokens", len(task.TokenIDs),
			"error", err,
		)
		o.reporter.Report(ctx, "verification.purge", task.RequestID, err)
		return 0
	}
	res.PurgedTokenIDs = append([]string(nil), task.TokenIDs...)
	o.metrics.AddPurged(n)
	o.logger.WarnContext(ctx, "tokens purged after leak verdict",
		"request_id", task.RequestID,
		"tokens", len(task.TokenIDs),
		"deleted", n,
		"score", *res.Score,
	)
	return n
}

func (o *Orchestrator) alert(ctx context.Context, task Task, res *Result, purged int) {
	alert := Alert{
		RequestID:     task.RequestID,
		Tier:          res.Tier,
		Score:         *res.Score,
		Rationale:     res.Rationale,
		PolicyContext: task.PolicyContext,
		TokenCount:    len(task.TokenIDs),
		Purged:        purged,
		PurgeError:    res.PurgeError,
		At:            o.now(),
	}
	if err := o.alerts.Publish(ctx, alert); err != nil {
		o.logger.ErrorContext(ctx, "publish verification alert failed",
			"request_id", task.RequestID,
			"error", err,
		)
		o.reporter.Report(ctx, "verification.alert", task.RequestID, err)
	}
}

func (o *Orchestrator) finish(ctx context.Context, res Result) Result {
	res.FinishedAt = o.now()
	o.metrics.IncVerification(string(res.Tier), res.Skipped, res.Score != nil && *res.Score >= o.thresholds.Alert)
	if o.results != nil {
		if err := o.results.Save(ctx, res); err != nil {
			o.logger.WarnContext(ctx, "save verification result failed",
				"request_id", res.RequestID,
				"error", err,
			)
		}
	}
	return res
}
