package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Client is the Gemini analysis backend.
type Client struct {
	client *genai.Client
	model  string // configured model, may be empty
}

func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{client: client, model: strings.TrimSpace(model)}, nil
}

func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// ResolveModel checks that the configured model exists and returns its id.
func (c *Client) ResolveModel(ctx context.Context) (string, error) {
	if c.model == "" {
		return "", errors.New("no Gemini model configured")
	}
	info, err := c.client.GenerativeModel(c.model).Info(ctx)
	if err != nil {
		return "", fmt.Errorf("model %s unavailable: %w", c.model, err)
	}
	return strings.TrimPrefix(info.Name, "models/"), nil
}

// Generate sends one prompt and returns the concatenated text parts of the
// first candidate.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	m := c.client.GenerativeModel(model)
	m.SetTemperature(0.4)

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("no response from Gemini")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", errors.New("empty response from Gemini")
	}
	return b.String(), nil
}
