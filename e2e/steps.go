package e2e

import (
	"github.com/cucumber/godog"

	"agegate/e2e/steps/common"
	"agegate/e2e/steps/subscription"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	subscription.RegisterSteps(ctx, tc)
}
