// Package codegen turns a free-text website description into a complete HTML
// document by calling an upstream chat-completion API.
package codegen

import "context"

// Language tags the kind of markup a Result carries.
type Language string

// LanguageHTML is the only output kind produced today.
const LanguageHTML Language = "html"

// Request is a single upstream completion call.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Result is a successful generation.
type Result struct {
	Code     string   `json:"code"`
	Language Language `json:"language"`
	Attempts int      `json:"-"`
}

// Provider is an abstraction for different LLM API providers.
// Each implementation handles provider-specific HTTP details, authentication,
// request/response formatting, and classifies its failures as *Error.
type Provider interface {
	// Complete makes exactly one upstream call and returns the generated text.
	Complete(ctx context.Context, req Request) (string, error)
	// Name identifies the provider in logs and status output.
	Name() string
	// Model is the upstream model identifier.
	Model() string
}
