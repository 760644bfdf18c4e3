package redaction

import (
	"context"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any, headers map[string]string) error
	GetResponseField(field string) (any, error)
	Set(key, value string)
	Get(key string) string
}

func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &redactionSteps{tc: tc}

	ctx.Step(`^I redact "([^"]*)" under the "([^"]*)" policy$`, steps.redact)
	ctx.Step(`^I redact "([^"]*)" under the "([^"]*)" policy requesting restoration$`, steps.redactRestorable)
	ctx.Step(`^the redacted text should not contain "([^"]*)"$`, steps.redactedTextExcludes)
	ctx.Step(`^the policy should report restoration (allowed|forbidden)$`, steps.restorationReported)
}

type redactionSteps struct {
	tc TestContext
}

func (s *redactionSteps) redact(ctx context.Context, text, policyContext string) error {
	return s.send(text, map[string]any{"context": policyContext})
}

func (s *redactionSteps) redactRestorable(ctx context.Context, text, policyContext string) error {
	return s.send(text, map[string]any{"context": policyContext, "restoration_allowed": true})
}

func (s *redactionSteps) send(text string, policy map[string]any) error {
	s.tc.Set("original_text", text)
	if err := s.tc.POST("/v1/redact", map[string]any{"text": text, "policy": policy}, nil); err != nil {
		return err
	}
	redacted, err := s.tc.GetResponseField("redacted_text")
	if err != nil {
		return err
	}
	s.tc.Set("redacted_text", fmt.Sprint(redacted))
	return nil
}

func (s *redactionSteps) redactedTextExcludes(ctx context.Context, value string) error {
	if strings.Contains(s.tc.Get("redacted_text"), value) {
		return fmt.Errorf("redacted text still contains %q", value)
	}
	return nil
}

func (s *redactionSteps) restorationReported(ctx context.Context, want string) error {
	raw, err := s.tc.GetResponseField("policy")
	if err != nil {
		return err
	}
	policy, ok := raw.(map[string]any)
	if !ok {
		return fmt.Errorf("policy field is %T", raw)
	}
	allowed, _ := policy["restoration_allowed"].(bool)
	if allowed != (want == "allowed") {
		return fmt.Errorf("expected restoration %s, got restoration_allowed=%v", want, allowed)
	}
	return nil
}
