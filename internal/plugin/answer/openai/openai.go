// Package openai answers prompts with OpenAI-compatible chat completion APIs.
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/chirino/ufdr-service/internal/config"
	registryanswer "github.com/chirino/ufdr-service/internal/registry/answer"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

func init() {
	registryanswer.Register(registryanswer.Plugin{
		Name:   "openai",
		Loader: load,
	})
}

func load(ctx context.Context) (registryanswer.Model, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("openai answer model: UFDR_SERVICE_OPENAI_API_KEY is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.OpenAIAPIKey)}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.OpenAIBaseURL, "/")+"/"))
	}
	return &Model{
		client:          openai.NewClient(opts...),
		model:           cfg.OpenAIChatModel,
		temperature:     cfg.AnswerTemperature,
		maxOutputTokens: int64(cfg.AnswerMaxOutputTokens),
	}, nil
}

// Model answers with a chat completion model on an OpenAI-compatible API.
type Model struct {
	client          openai.Client
	model           string
	temperature     float64
	maxOutputTokens int64
}

func (m *Model) Name() string { return "OpenAI" }

// Complete sends prompt as one user message and returns the first choice,
// or "" when the API returns no choices.
func (m *Model) Complete(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(m.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(m.temperature),
	}
	if m.maxOutputTokens > 0 {
		params.MaxCompletionTokens = openai.Int(m.maxOutputTokens)
	}
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

var _ registryanswer.Model = (*Model)(nil)
