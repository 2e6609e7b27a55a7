package codegen

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	OpenRouterURL     = "https://openrouter.ai/api/v1/chat/completions"
	OpenRouterModel   = "qwen/qwen-2.5-coder-32b-instruct:free"
	OpenRouterReferer = "https://sitegen.local"
	OpenRouterTitle   = "Website Builder"
)

type OpenRouterConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Referer string
	Title   string
	Timeout time.Duration
	Client  *http.Client
}

// OpenRouterProvider implements the Provider interface for OpenRouter's API.
// OpenRouter uses the OpenAI-compatible chat completions format.
type OpenRouterProvider struct {
	apiKey  string
	model   string
	url     string
	referer string
	title   string
	client  *http.Client
}

// NewOpenRouterProvider creates a new OpenRouter provider instance.
func NewOpenRouterProvider(cfg OpenRouterConfig) (*OpenRouterProvider, error) {
	if cfg.APIKey == "" {
		return nil, configError("openrouter: API key is not configured")
	}
	or := &OpenRouterProvider{
		apiKey:  cfg.APIKey,
		model:   orDefault(cfg.Model, OpenRouterModel),
		url:     orDefault(cfg.BaseURL, OpenRouterURL),
		referer: orDefault(cfg.Referer, OpenRouterReferer),
		title:   orDefault(cfg.Title, OpenRouterTitle),
		client:  httpClient(cfg.Client, cfg.Timeout),
	}
	return or, nil
}

func (or *OpenRouterProvider) Name() string  { return "openrouter" }
func (or *OpenRouterProvider) Model() string { return or.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete calls the OpenRouter API once and returns generated code.
func (or *OpenRouterProvider) Complete(ctx context.Context, r Request) (string, error) {
	body := chatRequest{
		Model: or.model,
		Messages: []chatMessage{
			{Role: "system", Content: r.System},
			{Role: "user", Content: r.Prompt},
		},
		Temperature: r.Temperature,
		MaxTokens:   r.MaxTokens,
	}
	headers := map[string]string{
		"Authorization": "Bearer " + or.apiKey,
		"HTTP-Referer":  or.referer,
		"X-Title":       or.title,
	}

	raw, err := postJSON(ctx, or.client, or.Name(), or.url, headers, body)
	if err != nil {
		return "", err
	}

	var response chatResponse
	if err := json.Unmarshal(raw, &response); err != nil {
		return "", malformed(or.Name(), "decode: "+err.Error())
	}
	if response.Error != nil {
		// OpenRouter sometimes reports provider throttling inside a 200 envelope.
		if fmt.Sprint(response.Error.Code) == "429" {
			return "", &Error{Kind: KindRateLimited, Status: http.StatusTooManyRequests,
				Message: "openrouter: rate limited: " + response.Error.Message}
		}
		return "", &Error{Kind: KindUpstream, Message: fmt.Sprintf("openrouter: %s", response.Error.Message)}
	}
	if len(response.Choices) == 0 {
		return "", malformed(or.Name(), "no choices")
	}
	msg := response.Choices[0].Message
	if msg == nil || msg.Content == nil {
		return "", malformed(or.Name(), "no content")
	}

	return extractCode(or.Name(), *msg.Content)
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
