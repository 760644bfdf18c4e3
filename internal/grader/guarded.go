package grader

import (
	"context"
	"log/slog"

	"ironclad/pkg/platform/circuit"
)

// Guarded wraps a Grader with a circuit breaker. Unreachable results count
// as failures; Assessed and ParseFailed count as successes because the judge
// did answer.
type Guarded struct {
	inner   Grader
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func NewGuarded(inner Grader, breaker *circuit.Breaker, logger *slog.Logger) *Guarded {
	return &Guarded{inner: inner, breaker: breaker, logger: logger}
}

func (g *Guarded) Assess(ctx context.Context, redactedText string) Assessment {
	if !g.breaker.Allow() {
		return Unreachable{Err: ErrCircuitOpen}
	}

	result := g.inner.Assess(ctx, redactedText)
	if _, failed := result.(Unreachable); failed {
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.logger.WarnContext(ctx, "grader circuit opened",
				"breaker", g.breaker.Name(),
			)
		}
		return result
	}
	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.logger.InfoContext(ctx, "grader circuit closed",
			"breaker", g.breaker.Name(),
		)
	}
	return result
}
