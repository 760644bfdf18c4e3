package ratelimit

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any, headers map[string]string) error
	GetLastResponseStatus() int
}

// RegisterSteps registers rate-limiting step definitions for /v1/restore.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}

	ctx.Step(`^I send (\d+) restore requests in quick succession$`, steps.burst)
	ctx.Step(`^at least one restore request should be throttled$`, steps.someThrottled)
}

type ratelimitSteps struct {
	tc       TestContext
	statuses []int
}

func (s *ratelimitSteps) burst(ctx context.Context, n int) error {
	s.statuses = s.statuses[:0]
	for range n {
		if err := s.tc.POST("/v1/restore", map[string]any{"redacted_text": "[REDACTED_aaaaaaaaaaaa]"}, nil); err != nil {
			return err
		}
		s.statuses = append(s.statuses, s.tc.GetLastResponseStatus())
	}
	return nil
}

func (s *ratelimitSteps) someThrottled(ctx context.Context) error {
	for _, st := range s.statuses {
		if st == 429 {
			return nil
		}
	}
	return fmt.Errorf("no request was throttled: %v", s.statuses)
}
