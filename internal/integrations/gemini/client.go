// Package gemini adapts Google's Gemini API to the text generation backend used by
// the confirmation service.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"order-agent/internal/domain"
	"order-agent/internal/integrations/paramstore"
)

const defaultModel = "gemini-2.0-flash"

// generateAPI is the subset of *genai.Models used by Client.
type generateAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// StatusError carries the upstream status of a failed generation.
type StatusError struct {
	StatusCode int
	Status     string
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gemini: status %d %s: %v", e.StatusCode, e.Status, e.Err)
}

func (e *StatusError) HTTPStatusCode() int {
	return e.StatusCode
}

func (e *StatusError) Unwrap() []error {
	if e.StatusCode == http.StatusTooManyRequests || e.Status == "RESOURCE_EXHAUSTED" {
		return []error{e.Err, domain.ErrQuotaExceeded}
	}
	return []error{e.Err}
}

type Client struct {
	api         generateAPI
	model       string
	temperature *float32
}

type Option func(*Client)

func WithModel(model string) Option {
	return func(c *Client) {
		if m := strings.TrimSpace(model); m != "" {
			c.model = m
		}
	}
}

func WithTemperature(t float32) Option {
	return func(c *Client) {
		c.temperature = &t
	}
}

// New reads the API key from {paramPrefix}/gemini-token and builds a Gemini API client.
func New(ctx context.Context, ps paramstore.Getter, paramPrefix string, opts ...Option) (*Client, error) {
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("gemini: parameter prefix must not be empty")
	}
	apiKey, err := paramstore.Token(ctx, ps, paramPrefix+"/gemini-token")
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return newClient(gc.Models, opts...)
}

func newClient(api generateAPI, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("gemini: api must not be nil")
	}
	c := &Client{api: api, model: defaultModel}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Complete generates a JSON reply for prompt, capped at maxTokens output tokens.
func (c *Client) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("gemini: prompt must not be empty")
	}
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      c.temperature,
	}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}

	resp, err := c.api.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", &StatusError{StatusCode: apiErr.Code, Status: apiErr.Status, Err: err}
		}
		return "", fmt.Errorf("gemini: generate: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("gemini: no candidates in response")
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("gemini: empty response text")
	}
	return text, nil
}
