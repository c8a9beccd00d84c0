// Package generator produces ideal customer profiles from a website and a
// short description. One call is one metered generation.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

type Request struct {
	Website     string `json:"website" validate:"required,http_url,max=2048"`
	Description string `json:"description" validate:"max=4000"`
}

type Result struct {
	Profile string `json:"profile"`
	Model   string `json:"model"`
}

type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

// ProviderError wraps a failure reported by the AI provider. Its message is
// for logs only.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

var errEmptyResponse = errors.New("empty completion")

const systemPrompt = `You extract an Ideal Customer Profile for a B2B company.
Given the company's website and description, describe the target customers:
industries, company size, buyer roles, pains and buying triggers. Be concise.`

type OpenAI struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAI builds a generator backed by chat completions. baseURL may be
// empty for the public API.
func NewOpenAI(apiKey, model, baseURL string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		maxTokens: 600,
	}
}

func (g *OpenAI) Generate(ctx context.Context, req Request) (Result, error) {
	prompt := "Website: " + req.Website
	if d := strings.TrimSpace(req.Description); d != "" {
		prompt += "\nDescription: " + d
	}
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: g.maxTokens,
	})
	if err != nil {
		return Result{}, &ProviderError{Provider: "openai", Err: err}
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return Result{}, &ProviderError{Provider: "openai", Err: errEmptyResponse}
	}
	return Result{Profile: resp.Choices[0].Message.Content, Model: resp.Model}, nil
}

// Static returns a canned profile. It is used for local development and
// tests when no provider key is configured.
type Static struct {
	Profile string
	Err     error
}

func (s Static) Generate(_ context.Context, req Request) (Result, error) {
	if s.Err != nil {
		return Result{}, &ProviderError{Provider: "static", Err: s.Err}
	}
	profile := s.Profile
	if profile == "" {
		profile = "Ideal customers for " + req.Website
	}
	return Result{Profile: profile, Model: "static"}, nil
}
