package bdd

import (
	"context"
	"fmt"

	"github.com/chirino/ufdr-service/internal/testutil/cucumber"
	"github.com/cucumber/godog"
)

func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(ctx *godog.ScenarioContext, s *cucumber.TestScenario) {
		e := &evidenceSteps{s: s}
		ctx.Step(`^evidence file "([^"]*)" should have (\d+) stored artifacts$`, e.shouldHaveStoredArtifacts)
		ctx.Step(`^evidence file "([^"]*)" should be soft deleted$`, e.shouldBeSoftDeleted)
	})
}

type evidenceSteps struct {
	s *cucumber.TestScenario
}

func (e *evidenceSteps) shouldHaveStoredArtifacts(id string, expected int) error {
	if e.s.Suite.DB == nil {
		return godog.ErrPending
	}
	id, err := e.s.Expand(id)
	if err != nil {
		return err
	}
	count, err := e.s.Suite.DB.CountArtifacts(context.Background(), id)
	if err != nil {
		return err
	}
	if count != expected {
		return fmt.Errorf("expected %d stored artifacts for %s, got %d", expected, id, count)
	}
	return nil
}

func (e *evidenceSteps) shouldBeSoftDeleted(id string) error {
	if e.s.Suite.DB == nil {
		return godog.ErrPending
	}
	id, err := e.s.Expand(id)
	if err != nil {
		return err
	}
	deleted, err := e.s.Suite.DB.IsSoftDeleted(context.Background(), id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("evidence file %s is not soft deleted", id)
	}
	return nil
}
