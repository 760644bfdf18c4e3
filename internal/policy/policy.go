// Package policy decides which detected entities are redacted and whether
// the resulting tokens may ever be restored.
//
// A Decision is computed per request from a named Context plus caller
// Overrides. Overrides can only tighten a context: they narrow the type
// allowlist and raise confidence minimums, and a restoration-locked context
// ignores requests to unlock it.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"ironclad/internal/detector"
	dErrors "ironclad/pkg/domain-errors"
	pstrings "ironclad/pkg/platform/strings"
)

// Overrides are optional caller adjustments to a context.
type Overrides struct {
	// EnabledTypes narrows the context allowlist to this subset. Types
	// outside the allowlist are ignored. Empty means "the whole allowlist".
	EnabledTypes []string
	// DisabledTypes are removed from the allowlist and win over EnabledTypes.
	DisabledTypes []string
	// MinConfidence raises the default minimum for every type.
	MinConfidence *float64
	// PerTypeMinConfidence raises the minimum for individual types.
	PerTypeMinConfidence map[string]float64
	// RestorationAllowed requests restorable tokens. Defaults to false.
	RestorationAllowed *bool
}

// Validate checks ranges.
func (o Overrides) Validate() error {
	if o.MinConfidence != nil && (*o.MinConfidence < 0 || *o.MinConfidence > 1) {
		return dErrors.New(dErrors.CodeValidation, "min_confidence_threshold must be between 0 and 1")
	}
	for typ, v := range o.PerTypeMinConfidence {
		if v < 0 || v > 1 {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("confidence threshold for %s must be between 0 and 1", typ))
		}
	}
	return nil
}

// Decision is the effective policy for one request.
type Decision struct {
	Context     string
	Description string
	// EnabledTypes is the effective allowlist, sorted.
	EnabledTypes []string
	// DefaultMinConfidence applies to enabled types without a per-type entry.
	DefaultMinConfidence float64
	MinConfidence        map[string]float64
	// RestorationAllowed is true only when the caller asked for it and the
	// context is not restoration-locked.
	RestorationAllowed bool
	// RestorationDowngraded records that the caller asked for restoration
	// and the context refused it.
	RestorationDowngraded bool

	enabled map[string]struct{}
}

// Enabled reports whether typ is in the effective allowlist.
func (d Decision) Enabled(typ string) bool {
	_, ok := d.enabled[typ]
	return ok
}

// Threshold returns the effective minimum confidence for typ.
func (d Decision) Threshold(typ string) float64 {
	if v, ok := d.MinConfidence[typ]; ok {
		return v
	}
	return d.DefaultMinConfidence
}

// Retains reports whether e should be redacted under d.
func (d Decision) Retains(e detector.Entity) bool {
	return d.Enabled(e.Type) && e.Confidence >= d.Threshold(e.Type)
}

// Engine resolves decisions against a Registry.
type Engine struct {
	registry *Registry
	logger   *slog.Logger
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func NewEngine(registry *Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Contexts lists the registered contexts.
func (e *Engine) Contexts() []Context {
	return e.registry.Contexts()
}

// Decide computes the effective decision for a context name and overrides.
//
// An unknown context returns the strict default decision together with an
// unknown_policy_context error, so a caller that proceeds anyway never gets
// a permissive policy.
func (e *Engine) Decide(ctx context.Context, contextName string, overrides Overrides) (Decision, error) {
	name := strings.ToLower(strings.TrimSpace(contextName))
	pc, ok := e.registry.Lookup(name)
	if !ok {
		e.logger.WarnContext(ctx, "unknown policy context",
			"context", contextName,
		)
		return build(e.registry.StrictDefault(), Overrides{}), dErrors.New(dErrors.CodeUnknownPolicyContext,
			fmt.Sprintf("unknown policy context %q", contextName))
	}
	if err := overrides.Validate(); err != nil {
		return build(e.registry.StrictDefault(), Overrides{}), err
	}

	d := build(pc, overrides)
	if d.RestorationDowngraded {
		e.logger.InfoContext(ctx, "restoration request downgraded by locked policy context",
			"context", pc.Name,
		)
	}
	return d, nil
}

// Filter keeps the entities d retains, ordered by start offset. It is pure
// and does not depend on input order.
func (e *Engine) Filter(d Decision, entities []detector.Entity) []detector.Entity {
	out := make([]detector.Entity, 0, len(entities))
	for _, ent := range entities {
		if d.Retains(ent) {
			out = append(out, ent)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		if out[i].End != out[j].End {
			return out[i].End < out[j].End
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// Resolve is Decide followed by Filter. On error the strict decision is
// returned with no entities.
func (e *Engine) Resolve(ctx context.Context, contextName string, overrides Overrides, entities []detector.Entity) (Decision, []detector.Entity, error) {
	d, err := e.Decide(ctx, contextName, overrides)
	if err != nil {
		return d, nil, err
	}
	return d, e.Filter(d, entities), nil
}

func build(pc Context, o Overrides) Decision {
	allow := pstrings.ToSet(pc.EnabledTypes)

	if requested := pstrings.DedupeAndTrimUpper(o.EnabledTypes); len(requested) > 0 {
		narrowed := make(map[string]struct{}, len(requested))
		for _, t := range requested {
			if _, ok := allow[t]; ok {
				narrowed[t] = struct{}{}
			}
		}
		allow = narrowed
	}
	for _, t := range pstrings.DedupeAndTrimUpper(o.DisabledTypes) {
		delete(allow, t)
	}

	enabled := make([]string, 0, len(allow))
	for t := range allow {
		enabled = append(enabled, t)
	}
	sort.Strings(enabled)

	defaultMin := pc.Floor
	if o.MinConfidence != nil {
		defaultMin = max(defaultMin, *o.MinConfidence)
	}
	perType := make(map[string]float64, len(o.PerTypeMinConfidence))
	for typ, v := range o.PerTypeMinConfidence {
		typ = strings.ToUpper(strings.TrimSpace(typ))
		if _, ok := allow[typ]; !ok {
			continue
		}
		perType[typ] = max(pc.Floor, v)
	}

	requested := o.RestorationAllowed != nil && *o.RestorationAllowed
	return Decision{
		Context:               pc.Name,
		Description:           pc.Description,
		EnabledTypes:          enabled,
		DefaultMinConfidence:  defaultMin,
		MinConfidence:         perType,
		RestorationAllowed:    requested && !pc.RestorationLocked,
		RestorationDowngraded: requested && pc.RestorationLocked,
		enabled:               allow,
	}
}
