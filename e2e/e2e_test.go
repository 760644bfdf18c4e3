package e2e

import (
	"context"
	"os"
	"testing"

	"github.com/cucumber/godog"
)

// TestFeatures runs against IRONCLAD_BASE_URL, e.g. a docker compose stack.
// ADMIN_TOKEN must come from cmd/admintoken with the server's secret.
func TestFeatures(t *testing.T) {
	baseURL := os.Getenv("IRONCLAD_BASE_URL")
	if baseURL == "" {
		t.Skip("IRONCLAD_BASE_URL not set")
	}
	tc := NewTestContext(baseURL, os.Getenv("ADMIN_TOKEN"))

	suite := godog.TestSuite{
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
				tc.Reset()
				return ctx, nil
			})
			RegisterSteps(ctx, tc)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			Strict:   true,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("e2e scenarios failed")
	}
}
