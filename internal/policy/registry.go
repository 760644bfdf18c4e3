package policy

import (
	"sort"

	"ironclad/internal/detector"
)

// Context names.
const (
	ContextGeneral    = "general"
	ContextHealthcare = "healthcare"
	ContextFinance    = "finance"

	// ContextStrictDefault names the decision returned alongside an
	// unknown_policy_context error.
	ContextStrictDefault = "strict_default"

	DefaultContext = ContextGeneral
)

// Context is a named, code-defined policy profile.
type Context struct {
	Name         string
	Description  string
	EnabledTypes []string
	// Floor is the minimum confidence no caller override can lower.
	Floor float64
	// RestorationLocked contexts never issue restorable tokens.
	RestorationLocked bool
}

// Registry is the immutable set of policy contexts. It is built once at
// startup and shared by all requests without locking.
type Registry struct {
	contexts map[string]Context
	order    []string
	strict   Context
}

// NewRegistry returns the built-in contexts.
func NewRegistry() *Registry {
	return newRegistry(
		Context{
			Name:        ContextGeneral,
			Description: "General purpose policy - redacts all PII types with restoration allowed",
			EnabledTypes: []string{
				detector.TypePerson,
				detector.TypeEmail,
				detector.TypePhone,
				detector.TypeCreditCard,
				detector.TypeSSN,
				detector.TypeDriverLicense,
				detector.TypePassport,
				detector.TypeIBAN,
				detector.TypeIPAddress,
				detector.TypeDateTime,
				detector.TypeLocation,
				detector.TypeURL,
				detector.TypeUSBankNumber,
			},
			Floor: 0.0,
		},
		Context{
			Name:        ContextHealthcare,
			Description: "Healthcare policy (HIPAA-compliant) - redacts PHI with no restoration",
			EnabledTypes: []string{
				detector.TypePerson,
				detector.TypePhone,
				detector.TypeEmail,
				detector.TypeSSN,
				detector.TypeDateTime,
				detector.TypeLocation,
				detector.TypeIPAddress,
			},
			Floor:             0.5,
			RestorationLocked: true,
		},
		Context{
			Name:        ContextFinance,
			Description: "Finance policy (PCI-DSS) - redacts financial PII with no restoration",
			EnabledTypes: []string{
				detector.TypePerson,
				detector.TypeSSN,
				detector.TypeCreditCard,
				detector.TypeIBAN,
				detector.TypePhone,
				detector.TypeEmail,
				detector.TypeUSBankNumber,
				detector.TypeDriverLicense,
			},
			Floor:             0.6,
			RestorationLocked: true,
		},
	)
}

func newRegistry(contexts ...Context) *Registry {
	r := &Registry{contexts: make(map[string]Context, len(contexts))}
	union := map[string]struct{}{}
	for _, c := range contexts {
		c.EnabledTypes = append([]string(nil), c.EnabledTypes...)
		r.contexts[c.Name] = c
		r.order = append(r.order, c.Name)
		for _, t := range c.EnabledTypes {
			union[t] = struct{}{}
		}
	}
	strictTypes := make([]string, 0, len(union))
	for t := range union {
		strictTypes = append(strictTypes, t)
	}
	sort.Strings(strictTypes)
	r.strict = Context{
		Name:              ContextStrictDefault,
		Description:       "Strict fallback - redacts every known type with no restoration",
		EnabledTypes:      strictTypes,
		Floor:             0.0,
		RestorationLocked: true,
	}
	return r
}

// Lookup returns the named context. The empty name selects the default.
func (r *Registry) Lookup(name string) (Context, bool) {
	if name == "" {
		name = DefaultContext
	}
	c, ok := r.contexts[name]
	return c, ok
}

// Contexts lists registered contexts in registration order.
func (r *Registry) Contexts() []Context {
	out := make([]Context, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.contexts[name])
	}
	return out
}

// StrictDefault is the most conservative profile: every known type, no
// confidence floor, restoration locked.
func (r *Registry) StrictDefault() Context {
	return r.strict
}
