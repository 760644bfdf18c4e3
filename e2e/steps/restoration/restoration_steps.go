package restoration

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any, headers map[string]string) error
	GetResponseField(field string) (any, error)
	AdminHeaders() map[string]string
	Set(key, value string)
	Get(key string) string
}

func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &restorationSteps{tc: tc}

	ctx.Step(`^an API key exists for service "([^"]*)"$`, steps.createKey)
	ctx.Step(`^the API key is revoked$`, steps.revokeKey)
	ctx.Step(`^I restore the redacted text$`, steps.restore)
	ctx.Step(`^I restore the redacted text without an API key$`, steps.restoreAnonymously)
	ctx.Step(`^the restored text should equal the original$`, steps.restoredEqualsOriginal)
}

type restorationSteps struct {
	tc TestContext
}

func (s *restorationSteps) createKey(ctx context.Context, service string) error {
	if err := s.tc.POST("/admin/keys", map[string]any{"service_name": service}, s.tc.AdminHeaders()); err != nil {
		return err
	}
	key, err := s.tc.GetResponseField("key")
	if err != nil {
		return err
	}
	keyID, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	s.tc.Set("api_key", fmt.Sprint(key))
	s.tc.Set("api_key_id", fmt.Sprint(keyID))
	return nil
}

func (s *restorationSteps) revokeKey(ctx context.Context) error {
	return s.tc.POST("/admin/keys/"+s.tc.Get("api_key_id")+"/revoke", nil, s.tc.AdminHeaders())
}

func (s *restorationSteps) restore(ctx context.Context) error {
	return s.tc.POST("/v1/restore",
		map[string]any{"redacted_text": s.tc.Get("redacted_text")},
		map[string]string{"X-API-Key": s.tc.Get("api_key")})
}

func (s *restorationSteps) restoreAnonymously(ctx context.Context) error {
	return s.tc.POST("/v1/restore", map[string]any{"redacted_text": s.tc.Get("redacted_text")}, nil)
}

func (s *restorationSteps) restoredEqualsOriginal(ctx context.Context) error {
	got, err := s.tc.GetResponseField("original_text")
	if err != nil {
		return err
	}
	if want := s.tc.Get("original_text"); fmt.Sprint(got) != want {
		return fmt.Errorf("expected %q, got %q", want, got)
	}
	return nil
}
