package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// Generator turns a prompt into model text
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiAgent calls the Gemini generateContent endpoint with a single user
// prompt. A zero thinking budget requests the low-latency mode.
type GeminiAgent struct {
	client   *genai.Client
	model    string
	thinking int32
	timeout  time.Duration
}

// NewGeminiAgent creates an agent for the configured model. It fails when
// no API key is set.
func NewGeminiAgent(ctx context.Context, settings AgentSettings) (*GeminiAgent, error) {
	if settings.APIKey == "" {
		return nil, ErrMissingCredential
	}
	if settings.Model == "" {
		return nil, errors.New("agent model is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:  settings.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if settings.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: settings.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &GeminiAgent{
		client:   client,
		model:    settings.Model,
		thinking: settings.ThinkingBudget,
		timeout:  settings.Timeout,
	}, nil
}

// Generate sends the prompt and returns the concatenated text parts of the
// first candidate.
func (a *GeminiAgent) Generate(ctx context.Context, prompt string) (string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	budget := a.thinking
	config := &genai.GenerateContentConfig{
		ThinkingConfig: &genai.ThinkingConfig{ThinkingBudget: &budget},
	}

	resp, err := a.client.Models.GenerateContent(ctx, a.model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	return resp.Text(), nil
}
