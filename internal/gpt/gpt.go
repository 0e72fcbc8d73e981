// Package gpt is the OpenAI-compatible analysis backend.
package gpt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const systemPrompt = "You are a technology news analyst. Follow the requested output format exactly."

type Client struct {
	client *openai.Client
	model  string
}

// NewClient builds a client; baseURL may point at any OpenAI-compatible API.
func NewClient(apiKey, baseURL, model string, timeout time.Duration) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &Client{
		client: openai.NewClientWithConfig(cfg),
		model:  strings.TrimSpace(model),
	}
}

// ResolveModel checks that the configured model is served by the endpoint.
func (c *Client) ResolveModel(ctx context.Context) (string, error) {
	if c.model == "" {
		return "", errors.New("no OpenAI model configured")
	}
	m, err := c.client.GetModel(ctx, c.model)
	if err != nil {
		return "", fmt.Errorf("model %s unavailable: %w", c.model, err)
	}
	return m.ID, nil
}

func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.4,
		MaxTokens:   800,
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("empty response from OpenAI")
	}
	return text, nil
}
