// Package grader asks an LLM judge whether redacted text still leaks
// personal data.
//
// Results are a closed set of variants so callers must handle failure
// explicitly:
//
//	switch a := g.Assess(ctx, text).(type) {
//	case grader.Assessed:    // a.Score in [0,1]
//	case grader.ParseFailed: // judge answered with something unusable
//	case grader.Unreachable: // network error, timeout, open circuit
//	}
package grader

import (
	"context"
	"errors"
)

// ErrCircuitOpen is carried by Unreachable when the breaker short-circuits.
var ErrCircuitOpen = errors.New("grader circuit open")

// Assessment is one of Assessed, ParseFailed or Unreachable.
type Assessment interface {
	isAssessment()
}

// Assessed is a usable judgement. A boolean "leaked" verdict maps to
// Score 1.0 (leaked) or 0.0 (clean).
type Assessed struct {
	Score     float64
	Leaked    bool
	Rationale string
}

// ParseFailed means the judge responded but the output was not a verdict.
type ParseFailed struct {
	Raw string
	Err error
}

// Unreachable means no response was obtained.
type Unreachable struct {
	Err error
}

func (Assessed) isAssessment()    {}
func (ParseFailed) isAssessment() {}
func (Unreachable) isAssessment() {}

// Grader judges redacted text. Only redacted text is ever sent.
type Grader interface {
	Assess(ctx context.Context, redactedText string) Assessment
}
