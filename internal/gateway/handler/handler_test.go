package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ironclad/internal/detector"
	"ironclad/internal/gateway"
	"ironclad/internal/policy"
	"ironclad/internal/redaction"
	"ironclad/internal/vault"
	"ironclad/internal/verification"
	"ironclad/pkg/testutil"
)

type acceptAll struct{}

func (acceptAll) Submit(context.Context, verification.Task) bool { return true }

func newRouter(t *testing.T) (http.Handler, *vault.InMemoryStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	v := vault.NewInMemoryStore()
	svc := gateway.New(
		detector.NewRegexDetector(detector.DefaultPatterns),
		policy.NewEngine(policy.NewRegistry(), policy.WithLogger(logger)),
		redaction.New(v, redaction.WithLogger(logger)),
		acceptAll{},
		gateway.WithLogger(logger),
	)
	r := chi.NewRouter()
	New(svc, logger).Register(r)
	return r, v
}

func TestHandleRedact(t *testing.T) {
	router, v := newRouter(t)

	allow := true
	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/v1/redact", RedactRequest{
		Text:   "Reach jane@example.com, SSN 123-45-6789",
		Policy: &PolicyRequest{Context: "finance", RestorationAllowed: &allow},
	}))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := testutil.UnmarshalResponse[RedactResponse](t, rr)
	assert.NotEmpty(t, resp.RequestID)
	assert.NotContains(t, resp.RedactedText, "jane@example.com")
	assert.NotContains(t, resp.RedactedText, "123-45-6789")
	assert.Equal(t, "finance", resp.Policy.Context)
	assert.False(t, resp.Policy.RestorationAllowed)
	assert.True(t, resp.Policy.RestorationDowngraded)
	assert.Equal(t, gateway.AuditQueued, resp.AuditStatus)
	assert.Equal(t, len(resp.ConfidenceScores), resp.ConfidenceSummary.Count)
	assert.Equal(t, resp.ConfidenceSummary.Count, v.Len())
	assert.NotContains(t, rr.Body.String(), "token_ids")
}

func TestHandleRedactRejections(t *testing.T) {
	router, v := newRouter(t)

	cases := []struct {
		name string
		body string
		code string
	}{
		{"empty text", `{"text":"   "}`, "validation_error"},
		{"unknown context", `{"text":"hi","policy":{"context":"legal"}}`, "unknown_policy_context"},
		{"threshold out of range", `{"text":"hi","policy":{"min_confidence_threshold":1.5}}`, "validation_error"},
		{"unknown field", `{"text":"hi","tokens":[]}`, "bad_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequestWithBody(t, http.MethodPost, "/v1/redact", tc.body))
			testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, tc.code)
		})
	}
	assert.Zero(t, v.Len())
}

func TestHandlePolicies(t *testing.T) {
	router, _ := newRouter(t)

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/v1/policies"))
	require.Equal(t, http.StatusOK, rr.Code)

	resp := testutil.UnmarshalResponse[PoliciesResponse](t, rr)
	assert.Equal(t, policy.ContextGeneral, resp.Default)
	require.Len(t, resp.Policies, 3)
	byName := map[string]PolicyResponse{}
	for _, p := range resp.Policies {
		byName[p.Name] = p
	}
	assert.True(t, byName["general"].RestorationAllowed)
	assert.False(t, byName["healthcare"].RestorationAllowed)
	assert.InDelta(t, 0.6, byName["finance"].MinConfidence, 1e-9)
}
