package main

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ironclad/internal/admintoken"
	"ironclad/internal/platform/config"
	"ironclad/internal/platform/metrics"
	"ironclad/pkg/testutil"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("ADMIN_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("OLLAMA_URL", "http://127.0.0.1:1")
	cfg, err := config.FromEnv()
	require.NoError(t, err)
	return cfg
}

func TestBuildInMemory(t *testing.T) {
	cfg := testConfig(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	infra := &infrastructure{log: log}

	app, err := build(cfg, infra, log, metrics.NewWithRegisterer(prometheus.NewRegistry()), nil)
	require.NoError(t, err)

	rr := testutil.DoRequest(app.router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	rr = testutil.DoRequest(app.router, testutil.NewRequest(t, http.MethodGet, "/v1/policies"))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = testutil.DoRequest(app.router, testutil.NewRequest(t, http.MethodGet, "/admin/keys"))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	token, err := admintoken.New(cfg.Admin.JWTSecret, cfg.Admin.Issuer).Issue("ops@example.com", cfg.Admin.TokenTTL)
	require.NoError(t, err)
	req := testutil.NewRequest(t, http.MethodGet, "/admin/verifications")
	req.Header.Set("Authorization", "Bearer "+token)
	rr = testutil.DoRequest(app.router, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestNewDetector(t *testing.T) {
	_, err := newDetector(config.DetectorConfig{Kind: "regex"})
	assert.NoError(t, err)
	_, err = newDetector(config.DetectorConfig{Kind: "presidio", PresidioURL: "http://localhost:5002", Language: "en"})
	assert.NoError(t, err)
	_, err = newDetector(config.DetectorConfig{Kind: "spacy"})
	assert.Error(t, err)
}
