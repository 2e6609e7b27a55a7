package codegen

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	AnthropicURL     = "https://api.anthropic.com/v1/messages"
	AnthropicModel   = "claude-3-5-sonnet-latest"
	anthropicVersion = "2023-06-01"
)

type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	Client  *http.Client
}

// AnthropicProvider implements the Provider interface for Anthropic's Messages API.
type AnthropicProvider struct {
	apiKey string
	model  string
	url    string
	client *http.Client
}

// NewAnthropicProvider creates a new Anthropic provider instance.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, configError("anthropic: API key is not configured")
	}
	return &AnthropicProvider{
		apiKey: cfg.APIKey,
		model:  orDefault(cfg.Model, AnthropicModel),
		url:    orDefault(cfg.BaseURL, AnthropicURL),
		client: httpClient(cfg.Client, cfg.Timeout),
	}, nil
}

func (ap *AnthropicProvider) Name() string  { return "anthropic" }
func (ap *AnthropicProvider) Model() string { return ap.model }

// Complete calls the Anthropic Messages API once and returns generated code.
func (ap *AnthropicProvider) Complete(ctx context.Context, r Request) (string, error) {
	body := map[string]any{
		"model":       ap.model,
		"max_tokens":  r.MaxTokens,
		"temperature": r.Temperature,
		"system":      r.System,
		"messages":    []map[string]string{{"role": "user", "content": r.Prompt}},
	}
	headers := map[string]string{
		"x-api-key":         ap.apiKey,
		"anthropic-version": anthropicVersion,
	}

	raw, err := postJSON(ctx, ap.client, ap.Name(), ap.url, headers, body)
	if err != nil {
		return "", err
	}

	var ar struct {
		Content []struct {
			Type string  `json:"type"`
			Text *string `json:"text"`
		} `json:"content"`
		Error *struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &ar); err != nil {
		return "", malformed(ap.Name(), "decode: "+err.Error())
	}
	if ar.Error != nil {
		if ar.Error.Type == "rate_limit_error" {
			return "", &Error{Kind: KindRateLimited, Status: http.StatusTooManyRequests,
				Message: "anthropic: rate limited: " + ar.Error.Message}
		}
		return "", &Error{Kind: KindUpstream, Message: fmt.Sprintf("anthropic: %s", ar.Error.Message)}
	}
	if len(ar.Content) == 0 || ar.Content[0].Text == nil {
		return "", malformed(ap.Name(), "no content")
	}

	return extractCode(ap.Name(), *ar.Content[0].Text)
}
