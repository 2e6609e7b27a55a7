package internal

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/forge-ai/sitegen/shared/codegen"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
)

type Config struct {
	Port            string
	AMQPURL         string
	Provider        string
	APIKey          string
	Model           string
	BaseURL         string
	Referer         string
	Title           string
	MaxAttempts     int
	BackoffBase     time.Duration
	UpstreamTimeout time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	Debug           bool
}

func ConfigFromEnv() Config {
	provider := env("LLM_PROVIDER", ProviderOpenRouter)
	keyVar := "OPENROUTER_API_KEY"
	if provider == ProviderAnthropic {
		keyVar = "ANTHROPIC_API_KEY"
	}
	return Config{
		Port:            env("PORT", "8080"),
		AMQPURL:         env("AMQP_URL", ""),
		Provider:        provider,
		APIKey:          env(keyVar, ""),
		Model:           env("LLM_MODEL", ""),
		BaseURL:         env("LLM_BASE_URL", ""),
		Referer:         env("OPENROUTER_REFERER", codegen.OpenRouterReferer),
		Title:           env("OPENROUTER_TITLE", codegen.OpenRouterTitle),
		MaxAttempts:     envInt("LLM_MAX_ATTEMPTS", codegen.DefaultMaxAttempts),
		BackoffBase:     envDuration("LLM_BACKOFF_BASE", codegen.DefaultBaseDelay),
		UpstreamTimeout: envDuration("LLM_TIMEOUT", codegen.DefaultTimeout),
		RequestTimeout:  envDuration("REQUEST_TIMEOUT", 3*time.Minute),
		ShutdownTimeout: envDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
		Debug:           os.Getenv("DEBUG") == "1",
	}
}

// Validate reports configuration that would make every generation fail.
func (c Config) Validate() error {
	var errs []error
	switch c.Provider {
	case ProviderOpenRouter, ProviderAnthropic:
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q", c.Provider))
	}
	if c.APIKey == "" {
		errs = append(errs, fmt.Errorf("API key for provider %q is not set", c.Provider))
	}
	if c.Port == "" {
		errs = append(errs, errors.New("PORT is empty"))
	}
	return errors.Join(errs...)
}

// NewProvider builds the upstream client selected by c.Provider.
func (c Config) NewProvider() (codegen.Provider, error) {
	switch c.Provider {
	case ProviderAnthropic:
		return codegen.NewAnthropicProvider(codegen.AnthropicConfig{
			APIKey:  c.APIKey,
			Model:   c.Model,
			BaseURL: c.BaseURL,
			Timeout: c.UpstreamTimeout,
		})
	case ProviderOpenRouter:
		return codegen.NewOpenRouterProvider(codegen.OpenRouterConfig{
			APIKey:  c.APIKey,
			Model:   c.Model,
			BaseURL: c.BaseURL,
			Referer: c.Referer,
			Title:   c.Title,
			Timeout: c.UpstreamTimeout,
		})
	}
	return nil, fmt.Errorf("unknown provider %q", c.Provider)
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		n, _ := strconv.Atoi(v)
		if n > 0 {
			return n
		}
	}
	return def
}

func envDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil && d >= 0 {
			return d
		}
	}
	return def
}
