package bdd

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/chirino/ufdr-service/internal/testutil/cucumber"
	"github.com/cucumber/godog"
)

func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(ctx *godog.ScenarioContext, s *cucumber.TestScenario) {
		m := &modelSteps{s: s}
		ctx.Step(`^the answering model replies "([^"]*)"$`, m.theModelReplies)
		ctx.Step(`^the answering model is failing with "([^"]*)"$`, m.theModelIsFailing)
		ctx.Step(`^the answering model should have been called (\d+) times?$`, m.theModelShouldHaveBeenCalled)
		ctx.Step(`^the last prompt should contain "([^"]*)"$`, m.theLastPromptShouldContain)
		ctx.Step(`^the last prompt should not contain "([^"]*)"$`, m.theLastPromptShouldNotContain)
	})
}

type modelSteps struct {
	s *cucumber.TestScenario
}

func (m *modelSteps) mock() (*MockAnswerModel, error) {
	mock, ok := m.s.Suite.Extra["answerModel"].(*MockAnswerModel)
	if !ok {
		return nil, fmt.Errorf("no mock answering model is configured")
	}
	return mock, nil
}

func (m *modelSteps) theModelReplies(reply string) error {
	mock, err := m.mock()
	if err != nil {
		return err
	}
	mock.SetReply(reply, http.StatusOK)
	return nil
}

func (m *modelSteps) theModelIsFailing(message string) error {
	mock, err := m.mock()
	if err != nil {
		return err
	}
	mock.SetReply(message, http.StatusBadRequest)
	return nil
}

func (m *modelSteps) theModelShouldHaveBeenCalled(expected int) error {
	mock, err := m.mock()
	if err != nil {
		return err
	}
	if got := len(mock.Prompts()); got != expected {
		return fmt.Errorf("expected %d model calls, got %d", expected, got)
	}
	return nil
}

func (m *modelSteps) lastPrompt() (string, error) {
	mock, err := m.mock()
	if err != nil {
		return "", err
	}
	prompts := mock.Prompts()
	if len(prompts) == 0 {
		return "", fmt.Errorf("the answering model has not been called")
	}
	return prompts[len(prompts)-1], nil
}

func (m *modelSteps) theLastPromptShouldContain(text string) error {
	prompt, err := m.lastPrompt()
	if err != nil {
		return err
	}
	if expanded, err := m.s.Expand(text); err != nil {
		return err
	} else if !strings.Contains(prompt, expanded) {
		return fmt.Errorf("prompt does not contain %q:\n%s", expanded, prompt)
	}
	return nil
}

func (m *modelSteps) theLastPromptShouldNotContain(text string) error {
	prompt, err := m.lastPrompt()
	if err != nil {
		return err
	}
	if strings.Contains(prompt, text) {
		return fmt.Errorf("prompt unexpectedly contains %q:\n%s", text, prompt)
	}
	return nil
}
