package bdd

import (
	"github.com/chirino/ufdr-service/internal/testutil/cucumber"
	"github.com/cucumber/godog"
)

func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(ctx *godog.ScenarioContext, s *cucumber.TestScenario) {
		a := &authSteps{s: s}
		// Roles come from the server's admin and auditor user lists, so every
		// variant only picks the bearer identity.
		ctx.Step(`^I am authenticated as user "([^"]*)"$`, a.iAmAuthenticatedAs)
		ctx.Step(`^I am authenticated as admin user "([^"]*)"$`, a.iAmAuthenticatedAs)
		ctx.Step(`^I am authenticated as auditor user "([^"]*)"$`, a.iAmAuthenticatedAs)
		ctx.Step(`^I am not authenticated$`, a.iAmNotAuthenticated)
	})
}

type authSteps struct {
	s *cucumber.TestScenario
}

func (a *authSteps) iAmAuthenticatedAs(userID string) error {
	a.s.Suite.Mu.Lock()
	defer a.s.Suite.Mu.Unlock()
	if a.s.Users[userID] == nil {
		a.s.Users[userID] = &cucumber.TestUser{Name: userID, Subject: userID}
	}
	a.s.CurrentUser = userID
	return nil
}

func (a *authSteps) iAmNotAuthenticated() error {
	a.s.CurrentUser = ""
	return nil
}
