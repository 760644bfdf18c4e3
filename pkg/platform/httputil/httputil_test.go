package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "ironclad/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "internal_error" {
			t.Fatalf("expected error code internal_error, got %q", body["error"])
		}
		if _, ok := body["error_description"]; ok {
			t.Fatalf("expected error_description to be omitted for internal errors")
		}
	})

	t.Run("bad request includes description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid input"))

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "bad_request" {
			t.Fatalf("expected error code bad_request, got %q", body["error"])
		}
		if body["error_description"] != "invalid input" {
			t.Fatalf("expected error_description to be returned for bad request")
		}
	})

	t.Run("uncoded errors are internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, errors.New("pq: connection reset"))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "pq:")
	})
}

func TestStatusForGatewayCodes(t *testing.T) {
	cases := map[dErrors.Code]int{
		dErrors.CodeUnauthorized:             http.StatusUnauthorized,
		dErrors.CodePolicyForbidsRestoration: http.StatusForbidden,
		dErrors.CodeNoTokensFound:            http.StatusNotFound,
		dErrors.CodeStorageUnavailable:       http.StatusServiceUnavailable,
		dErrors.CodeUnknownPolicyContext:     http.StatusBadRequest,
		dErrors.CodeRateLimited:              http.StatusTooManyRequests,
	}
	seen := map[int]dErrors.Code{}
	for code, want := range cases {
		got := StatusFor(code)
		assert.Equal(t, want, got, "code %s", code)
		if prev, dup := seen[got]; dup && got != http.StatusBadRequest {
			t.Fatalf("codes %s and %s share status %d", prev, code, got)
		}
		seen[got] = code
	}
}

type sampleRequest struct {
	Text string `json:"text"`
}

func (r *sampleRequest) Validate() error {
	r.Text = strings.TrimSpace(r.Text)
	if r.Text == "" {
		return dErrors.New(dErrors.CodeValidation, "text is required")
	}
	return nil
}

func TestDecodeAndPrepare(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("valid body is normalized", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"  hi  "}`))
		w := httptest.NewRecorder()
		req, ok := DecodeAndPrepare[sampleRequest](w, r, logger, r.Context(), "req-1")
		require.True(t, ok)
		assert.Equal(t, "hi", req.Text)
	})

	t.Run("validation failure writes 400", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"   "}`))
		w := httptest.NewRecorder()
		_, ok := DecodeAndPrepare[sampleRequest](w, r, logger, r.Context(), "req-2")
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "validation_error")
	})

	t.Run("unknown fields rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"a","extra":1}`))
		w := httptest.NewRecorder()
		_, ok := DecodeAndPrepare[sampleRequest](w, r, logger, r.Context(), "req-3")
		assert.False(t, ok)
		assert.Contains(t, w.Body.String(), "bad_request")
	})

	t.Run("empty body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
		w := httptest.NewRecorder()
		_, ok := DecodeAndPrepare[sampleRequest](w, r, logger, r.Context(), "req-4")
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDecodeJSON(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":`))
	_, err := DecodeJSON[sampleRequest](r)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	assert.Equal(t, "invalid JSON body", dErrors.MessageOf(err))

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":""}`))
	req, err := DecodeJSON[sampleRequest](r)
	require.NoError(t, err)
	assert.Empty(t, req.Text, "DecodeJSON does not validate")
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
		wantErr    bool
	}{
		{query: "", wantLimit: DefaultPageLimit},
		{query: "?limit=10&offset=20", wantLimit: 10, wantOffset: 20},
		{query: "?limit=100000", wantLimit: MaxPageLimit},
		{query: "?limit=0", wantErr: true},
		{query: "?limit=abc", wantErr: true},
		{query: "?offset=-1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/keys"+tt.query, nil)
			limit, offset, err := ParsePagination(req)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, dErrors.CodeBadRequest, dErrors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLimit, limit)
			assert.Equal(t, tt.wantOffset, offset)
		})
	}
}
