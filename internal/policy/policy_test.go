package policy

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ironclad/internal/detector"
	dErrors "ironclad/pkg/domain-errors"
)

func newEngine() *Engine {
	return NewEngine(NewRegistry(), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func ptr[T any](v T) *T { return &v }

// "Patient John Doe, SSN: 123-45-6789"
func patientEntities() []detector.Entity {
	return []detector.Entity{
		{Start: 8, End: 16, Type: detector.TypePerson, Confidence: 0.85},
		{Start: 23, End: 34, Type: detector.TypeSSN, Confidence: 0.95},
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	general, ok := r.Lookup("")
	require.True(t, ok, "empty name selects the default context")
	assert.Equal(t, ContextGeneral, general.Name)
	assert.Len(t, general.EnabledTypes, 13)
	assert.False(t, general.RestorationLocked)

	hc, ok := r.Lookup(ContextHealthcare)
	require.True(t, ok)
	assert.Len(t, hc.EnabledTypes, 7)
	assert.InDelta(t, 0.5, hc.Floor, 1e-9)
	assert.True(t, hc.RestorationLocked)

	fin, ok := r.Lookup(ContextFinance)
	require.True(t, ok)
	assert.Len(t, fin.EnabledTypes, 8)
	assert.InDelta(t, 0.6, fin.Floor, 1e-9)
	assert.True(t, fin.RestorationLocked)

	_, ok = r.Lookup("legal")
	assert.False(t, ok)

	names := []string{}
	for _, c := range r.Contexts() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{ContextGeneral, ContextHealthcare, ContextFinance}, names)

	strict := r.StrictDefault()
	assert.True(t, strict.RestorationLocked)
	assert.Len(t, strict.EnabledTypes, 13, "strict default covers the union of all contexts")
}

func TestHealthcareRedactsPatientAndLocksRestoration(t *testing.T) {
	e := newEngine()

	d, kept, err := e.Resolve(context.Background(), ContextHealthcare, Overrides{}, patientEntities())
	require.NoError(t, err)
	assert.Len(t, kept, 2)
	assert.False(t, d.RestorationAllowed)
	assert.False(t, d.RestorationDowngraded)
}

func TestLockedContextSilentlyDowngradesRestoration(t *testing.T) {
	e := newEngine()

	for _, name := range []string{ContextHealthcare, ContextFinance} {
		t.Run(name, func(t *testing.T) {
			d, err := e.Decide(context.Background(), name, Overrides{RestorationAllowed: ptr(true)})
			require.NoError(t, err, "caller asking for restoration on a locked context is not an error")
			assert.False(t, d.RestorationAllowed)
			assert.True(t, d.RestorationDowngraded)
		})
	}
}

func TestGeneralRestorationRequiresExplicitOptIn(t *testing.T) {
	e := newEngine()

	d, err := e.Decide(context.Background(), ContextGeneral, Overrides{})
	require.NoError(t, err)
	assert.False(t, d.RestorationAllowed, "default is false even on unlocked contexts")

	d, err = e.Decide(context.Background(), ContextGeneral, Overrides{RestorationAllowed: ptr(true)})
	require.NoError(t, err)
	assert.True(t, d.RestorationAllowed)
	assert.False(t, d.RestorationDowngraded)
}

func TestUnknownContextReturnsStrictDecisionAndError(t *testing.T) {
	e := newEngine()

	d, kept, err := e.Resolve(context.Background(), "legal", Overrides{RestorationAllowed: ptr(true)}, patientEntities())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnknownPolicyContext))
	assert.Nil(t, kept)
	assert.Equal(t, ContextStrictDefault, d.Context)
	assert.False(t, d.RestorationAllowed)
	assert.True(t, d.Enabled(detector.TypeSSN))
}

func TestOverridesOnlyTighten(t *testing.T) {
	e := newEngine()

	t.Run("enabled types intersect the allowlist", func(t *testing.T) {
		d, err := e.Decide(context.Background(), ContextHealthcare, Overrides{
			EnabledTypes: []string{"us_ssn", detector.TypeCreditCard},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{detector.TypeSSN}, d.EnabledTypes, "CREDIT_CARD is outside the healthcare allowlist")
	})

	t.Run("disabled wins over enabled", func(t *testing.T) {
		d, err := e.Decide(context.Background(), ContextGeneral, Overrides{
			EnabledTypes:  []string{detector.TypePerson, detector.TypeSSN},
			DisabledTypes: []string{detector.TypePerson},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{detector.TypeSSN}, d.EnabledTypes)
	})

	t.Run("min confidence cannot go below the floor", func(t *testing.T) {
		d, err := e.Decide(context.Background(), ContextFinance, Overrides{
			MinConfidence:        ptr(0.1),
			PerTypeMinConfidence: map[string]float64{detector.TypeSSN: 0.2, detector.TypePerson: 0.9},
		})
		require.NoError(t, err)
		assert.InDelta(t, 0.6, d.DefaultMinConfidence, 1e-9)
		assert.InDelta(t, 0.6, d.Threshold(detector.TypeSSN), 1e-9)
		assert.InDelta(t, 0.9, d.Threshold(detector.TypePerson), 1e-9)
	})

	t.Run("raised threshold filters low confidence spans", func(t *testing.T) {
		_, kept, err := e.Resolve(context.Background(), ContextGeneral, Overrides{MinConfidence: ptr(0.9)}, patientEntities())
		require.NoError(t, err)
		require.Len(t, kept, 1)
		assert.Equal(t, detector.TypeSSN, kept[0].Type)
	})

	t.Run("out of range threshold rejected", func(t *testing.T) {
		_, err := e.Decide(context.Background(), ContextGeneral, Overrides{MinConfidence: ptr(1.5)})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestFilterDropsBelowFloorAndDisabledTypes(t *testing.T) {
	e := newEngine()
	entities := []detector.Entity{
		{Start: 0, End: 4, Type: detector.TypePerson, Confidence: 0.4},
		{Start: 5, End: 9, Type: detector.TypeCreditCard, Confidence: 0.99},
		{Start: 10, End: 14, Type: detector.TypeEmail, Confidence: 0.5},
	}
	_, kept, err := e.Resolve(context.Background(), ContextHealthcare, Overrides{}, entities)
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, detector.TypeEmail, kept[0].Type, "0.5 meets the inclusive 0.5 floor")
}

func TestFilterIsOrderIndependent(t *testing.T) {
	e := newEngine()
	d, err := e.Decide(context.Background(), ContextGeneral, Overrides{})
	require.NoError(t, err)

	entities := []detector.Entity{
		{Start: 30, End: 40, Type: detector.TypeEmail, Confidence: 1},
		{Start: 0, End: 5, Type: detector.TypePerson, Confidence: 0.7},
		{Start: 12, End: 23, Type: detector.TypeSSN, Confidence: 0.9},
		{Start: 50, End: 55, Type: "UNKNOWN_TYPE", Confidence: 1},
	}
	want := e.Filter(d, entities)
	require.Len(t, want, 3)

	rng := rand.New(rand.NewSource(7))
	for range 20 {
		shuffled := append([]detector.Entity(nil), entities...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		assert.Equal(t, want, e.Filter(d, shuffled))
	}
}
