package e2e

import (
	"github.com/cucumber/godog"

	"ironclad/e2e/steps/common"
	"ironclad/e2e/steps/ratelimit"
	"ironclad/e2e/steps/redaction"
	"ironclad/e2e/steps/restoration"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	redaction.RegisterSteps(ctx, tc)
	restoration.RegisterSteps(ctx, tc)
	ratelimit.RegisterSteps(ctx, tc)
}
