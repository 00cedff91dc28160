package bdd

import (
	"context"

	"github.com/chirino/ufdr-service/internal/testutil/cucumber"
	"github.com/cucumber/godog"
)

func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(ctx *godog.ScenarioContext, s *cucumber.TestScenario) {
		ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
			if mock, ok := s.Suite.Extra["answerModel"].(*MockAnswerModel); ok {
				mock.Reset()
			}
			if s.Suite.DB == nil {
				return ctx, nil
			}
			return ctx, s.Suite.DB.ClearAll(ctx)
		})
	})
}
