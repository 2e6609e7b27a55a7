package codegen

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	// MaxBackoff bounds a single wait between throttled attempts.
	MaxBackoff = time.Minute
)

const rateLimitMessage = "Rate limit exceeded. Please try again in a few minutes."

// Generator wraps a Provider with prompt validation and a bounded
// retry-on-throttle procedure.
type Generator struct {
	provider    Provider
	maxAttempts int
	baseDelay   time.Duration
	temperature float64
	maxTokens   int
	sleep       func(ctx context.Context, d time.Duration) error
}

type Option func(*Generator)

// WithMaxAttempts bounds the total number of upstream calls per generation.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithBaseDelay sets the backoff seed; the wait before attempt n+1 is base<<n.
func WithBaseDelay(d time.Duration) Option {
	return func(g *Generator) {
		if d >= 0 {
			g.baseDelay = d
		}
	}
}

// WithSleep replaces the suspension used between attempts.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Generator) { g.sleep = fn }
}

func WithTemperature(t float64) Option {
	return func(g *Generator) { g.temperature = t }
}

func WithMaxTokens(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

func NewGenerator(p Provider, opts ...Option) *Generator {
	g := &Generator{
		provider:    p,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) Provider() Provider { return g.provider }

// Generate validates the prompt and asks the provider for a website. Only
// rate-limit failures are retried; every other failure ends the procedure
// after the call that produced it.
func (g *Generator) Generate(ctx context.Context, prompt string) (*Result, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, invalidInput("prompt is required")
	}

	req := Request{
		System:      SystemInstruction,
		Prompt:      prompt,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	}

	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		code, err := g.provider.Complete(ctx, req)
		if err == nil {
			loggerFrom(ctx).Debug().
				Str("provider", g.provider.Name()).
				Int("attempt", attempt).
				Int("bytes", len(code)).
				Msg("website generated")
			return &Result{Code: code, Language: LanguageHTML, Attempts: attempt}, nil
		}
		lastErr = err

		if !IsRateLimited(err) {
			return nil, withAttempts(err, attempt)
		}
		if attempt == g.maxAttempts {
			break
		}

		delay := g.backoff(attempt)
		loggerFrom(ctx).Warn().
			Str("provider", g.provider.Name()).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("rate limited, retrying")
		if tr := retryTraceFrom(ctx); tr != nil && tr.Backoff != nil {
			tr.Backoff(attempt, delay, err)
		}
		if err := g.sleep(ctx, delay); err != nil {
			return nil, &Error{Kind: KindNetwork, Message: "generation cancelled while backing off", Attempts: attempt, Err: err}
		}
	}

	return nil, &Error{
		Kind:     KindRateLimited,
		Status:   http.StatusTooManyRequests,
		Message:  rateLimitMessage,
		Attempts: g.maxAttempts,
		Err:      lastErr,
	}
}

// RetryTrace observes the retry procedure of a single Generate call.
type RetryTrace struct {
	// Backoff is called before each wait with the attempt that was throttled.
	Backoff func(attempt int, delay time.Duration, err error)
}

type traceKey struct{}

// WithRetryTrace returns a context that reports retries of Generate to tr.
func WithRetryTrace(ctx context.Context, tr *RetryTrace) context.Context {
	return context.WithValue(ctx, traceKey{}, tr)
}

// backoff is baseDelay doubled once per throttled attempt, capped at MaxBackoff.
func (g *Generator) backoff(attempt int) time.Duration {
	d := g.baseDelay
	for i := 0; i < attempt; i++ {
		if d >= MaxBackoff/2 {
			return MaxBackoff
		}
		d <<= 1
	}
	return d
}

// loggerFrom prefers the request-scoped logger carried by ctx.
func loggerFrom(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}

func retryTraceFrom(ctx context.Context) *RetryTrace {
	tr, _ := ctx.Value(traceKey{}).(*RetryTrace)
	return tr
}

func withAttempts(err error, attempt int) error {
	var e *Error
	if !errors.As(err, &e) {
		return &Error{Kind: KindUpstream, Message: "generation failed", Attempts: attempt, Err: err}
	}
	cp := *e
	cp.Attempts = attempt
	return &cp
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
