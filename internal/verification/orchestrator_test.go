package verification

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ironclad/internal/grader"
	"ironclad/internal/vault"
)

type stubGrader struct {
	mu       sync.Mutex
	result   grader.Assessment
	block    bool
	received []string
}

func (g *stubGrader) Assess(ctx context.Context, text string) grader.Assessment {
	g.mu.Lock()
	g.received = append(g.received, text)
	g.mu.Unlock()
	if g.block {
		<-ctx.Done()
		return grader.Unreachable{Err: ctx.Err()}
	}
	return g.result
}

type recordingSink struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (s *recordingSink) Publish(_ context.Context, a Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return s.err
}

type failingVault struct {
	vault.Vault
}

func (failingVault) DeleteMany(context.Context, []string) (int, error) {
	return 0, errors.New("redis: connection refused")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedTokens(t *testing.T, v vault.Vault, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, v.Put(context.Background(), &vault.Token{
			ID:                 id,
			Value:              "secret-" + id,
			RequestID:          "req-1",
			RestorationAllowed: true,
		}, time.Hour))
	}
}

func newTask(ids ...string) Task {
	return Task{
		RequestID:     "req-1",
		RedactedText:  "Contact [REDACTED_aaaaaaaaaaaa]",
		TokenIDs:      ids,
		PolicyContext: "general",
	}
}

func TestThresholds(t *testing.T) {
	th := DefaultThresholds
	require.NoError(t, th.Validate())

	cases := map[float64]State{
		0.0:  StateAllowed,
		0.29: StateAllowed,
		0.3:  StateLogged,
		0.6:  StateAlerted,
		0.89: StateAlerted,
		0.9:  StatePurged,
		1.0:  StatePurged,
	}
	for score, want := range cases {
		assert.Equal(t, want, th.Tier(score), "score %v", score)
	}

	assert.Error(t, Thresholds{Log: 0.7, Alert: 0.6, Purge: 0.9}.Validate())
	assert.Error(t, Thresholds{Log: 0.1, Alert: 0.6, Purge: 1.5}.Validate())
}

func TestVerifyTiers(t *testing.T) {
	tests := []struct {
		name       string
		score      float64
		wantState  State
		wantAlerts int
		wantLeft   int
	}{
		{name: "allow", score: 0.1, wantState: StateAllowed, wantLeft: 3},
		{name: "log", score: 0.4, wantState: StateLogged, wantLeft: 3},
		{name: "alert", score: 0.7, wantState: StateAlerted, wantAlerts: 1, wantLeft: 3},
		{name: "purge", score: 0.95, wantState: StatePurged, wantAlerts: 1, wantLeft: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := vault.NewInMemoryStore()
			seedTokens(t, v, "aaaaaaaaaaaa", "bbbbbbbbbbbb", "cccccccccccc")
			sink := &recordingSink{}
			store := NewInMemoryStore()
			o := NewOrchestrator(&stubGrader{result: grader.Assessed{Score: tt.score, Rationale: "r"}}, v, DefaultThresholds,
				WithLogger(discardLogger()),
				WithAlertSink(sink),
				WithResultStore(store),
			)

			res := o.Verify(context.Background(), newTask("aaaaaaaaaaaa", "bbbbbbbbbbbb"))

			assert.Equal(t, tt.wantState, res.State)
			assert.True(t, res.State.Terminal())
			assert.False(t, res.Skipped)
			require.NotNil(t, res.Score)
			assert.Equal(t, tt.score, *res.Score)
			assert.Len(t, sink.alerts, tt.wantAlerts)
			// Only the task's tokens are ever purged.
			assert.Equal(t, tt.wantLeft, v.Len())
			other, err := v.Get(context.Background(), "cccccccccccc")
			require.NoError(t, err)
			assert.Equal(t, "secret-cccccccccccc", other.Value)

			saved, err := store.List(context.Background(), 10, 0)
			require.NoError(t, err)
			require.Len(t, saved, 1)
			assert.Equal(t, tt.wantState, saved[0].State)
		})
	}
}

func TestVerifyPurgeIsIdempotent(t *testing.T) {
	v := vault.NewInMemoryStore()
	seedTokens(t, v, "aaaaaaaaaaaa", "bbbbbbbbbbbb")
	sink := &recordingSink{}
	o := NewOrchestrator(&stubGrader{result: grader.Assessed{Score: 1, Leaked: true}}, v, DefaultThresholds,
		WithLogger(discardLogger()),
		WithAlertSink(sink),
	)
	task := newTask("aaaaaaaaaaaa", "bbbbbbbbbbbb")

	first := o.Verify(context.Background(), task)
	second := o.Verify(context.Background(), task)

	assert.Equal(t, StatePurged, first.State)
	assert.Equal(t, StatePurged, second.State)
	assert.Empty(t, first.PurgeError)
	assert.Empty(t, second.PurgeError)
	assert.ElementsMatch(t, task.TokenIDs, second.PurgedTokenIDs)
	assert.Equal(t, 0, v.Len())
	require.Len(t, sink.alerts, 2)
	assert.Equal(t, 2, sink.alerts[0].Purged)
	assert.Equal(t, 0, sink.alerts[1].Purged)
}

func TestVerifyGraderFailuresNeverPurge(t *testing.T) {
	tests := []struct {
		name       string
		grader     *stubGrader
		wantReason string
	}{
		{
			name:       "timeout",
			grader:     &stubGrader{block: true},
			wantReason: SkipGraderTimeout,
		},
		{
			name:       "unreachable",
			grader:     &stubGrader{result: grader.Unreachable{Err: errors.New("connection refused")}},
			wantReason: SkipGraderUnreachable,
		},
		{
			name:       "circuit open",
			grader:     &stubGrader{result: grader.Unreachable{Err: grader.ErrCircuitOpen}},
			wantReason: SkipCircuitOpen,
		},
		{
			name:       "malformed output",
			grader:     &stubGrader{result: grader.ParseFailed{Raw: "nope", Err: errors.New("no JSON object")}},
			wantReason: SkipGraderMalformed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := vault.NewInMemoryStore()
			seedTokens(t, v, "aaaaaaaaaaaa")
			sink := &recordingSink{}
			o := NewOrchestrator(tt.grader, v, DefaultThresholds,
				WithLogger(discardLogger()),
				WithAlertSink(sink),
				WithGraderTimeout(20*time.Millisecond),
			)

			res := o.Verify(context.Background(), newTask("aaaaaaaaaaaa"))

			assert.Equal(t, StateAllowed, res.State)
			assert.True(t, res.Skipped)
			assert.Equal(t, tt.wantReason, res.SkipReason)
			assert.Nil(t, res.Score)
			assert.Equal(t, 1, v.Len())
			assert.Empty(t, sink.alerts)
		})
	}
}

func TestVerifySendsOnlyRedactedText(t *testing.T) {
	g := &stubGrader{result: grader.Assessed{Score: 0}}
	o := NewOrchestrator(g, vault.NewInMemoryStore(), DefaultThresholds, WithLogger(discardLogger()))

	task := newTask("aaaaaaaaaaaa")
	o.Verify(context.Background(), task)

	require.Len(t, g.received, 1)
	assert.Equal(t, task.RedactedText, g.received[0])
}

func TestVerifyWithoutTokensSkipsGrader(t *testing.T) {
	g := &stubGrader{result: grader.Assessed{Score: 1}}
	o := NewOrchestrator(g, vault.NewInMemoryStore(), DefaultThresholds, WithLogger(discardLogger()))

	res := o.Verify(context.Background(), newTask())

	assert.True(t, res.Skipped)
	assert.Equal(t, SkipNoTokens, res.SkipReason)
	assert.Empty(t, g.received)
}

func TestVerifyPurgeFailureIsContained(t *testing.T) {
	sink := &recordingSink{}
	o := NewOrchestrator(&stubGrader{result: grader.Assessed{Score: 0.99}}, failingVault{}, DefaultThresholds,
		WithLogger(discardLogger()),
		WithAlertSink(sink),
	)

	res := o.Verify(context.Background(), newTask("aaaaaaaaaaaa"))

	assert.Equal(t, StatePurged, res.State)
	assert.Contains(t, res.PurgeError, "connection refused")
	assert.Empty(t, res.PurgedTokenIDs)
	require.Len(t, sink.alerts, 1)
	assert.NotEmpty(t, sink.alerts[0].PurgeError)
}
