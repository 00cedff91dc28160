// Package genai answers prompts with Google's Gemini models.
package genai

import (
	"context"
	"fmt"

	"github.com/chirino/ufdr-service/internal/config"
	registryanswer "github.com/chirino/ufdr-service/internal/registry/answer"
	"google.golang.org/genai"
)

func init() {
	registryanswer.Register(registryanswer.Plugin{
		Name:   "genai",
		Loader: load,
	})
}

func load(ctx context.Context) (registryanswer.Model, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.GenAIAPIKey == "" {
		return nil, fmt.Errorf("genai answer model: UFDR_SERVICE_GENAI_API_KEY is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GenAIAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai answer model: %w", err)
	}
	return &Model{
		models:          client.Models,
		model:           cfg.AnswerModel,
		temperature:     float32(cfg.AnswerTemperature),
		maxOutputTokens: int32(cfg.AnswerMaxOutputTokens),
	}, nil
}

// Model answers with a single Gemini model through the Gen AI SDK.
type Model struct {
	models          *genai.Models
	model           string
	temperature     float32
	maxOutputTokens int32
}

func (m *Model) Name() string { return "Gemini" }

// Complete sends prompt as one user turn and returns the generated text.
func (m *Model) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := m.models.GenerateContent(ctx, m.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(m.temperature),
		MaxOutputTokens: m.maxOutputTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

var _ registryanswer.Model = (*Model)(nil)
