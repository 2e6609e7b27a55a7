package codegen

import (
	"errors"
	"fmt"
)

// Kind classifies a generation failure.
type Kind string

const (
	KindInvalidInput  Kind = "invalid_input"
	KindRateLimited   Kind = "rate_limited"
	KindUpstream      Kind = "upstream_error"
	KindConfiguration Kind = "configuration_error"
	KindNetwork       Kind = "network_error"
)

// Error is the single failure type surfaced by this package.
type Error struct {
	Kind     Kind
	Status   int // upstream HTTP status, 0 when no response was received
	Message  string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the classification of err. Errors not produced by this
// package are treated as upstream failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstream
}

// IsRateLimited reports whether err signals upstream throttling.
func IsRateLimited(err error) bool {
	return err != nil && KindOf(err) == KindRateLimited
}

func invalidInput(msg string) *Error {
	return &Error{Kind: KindInvalidInput, Message: msg}
}

func configError(msg string) *Error {
	return &Error{Kind: KindConfiguration, Message: msg}
}

func networkError(provider string, err error) *Error {
	return &Error{Kind: KindNetwork, Message: provider + " request failed", Err: err}
}

func malformed(provider, what string) *Error {
	return &Error{Kind: KindUpstream, Message: fmt.Sprintf("%s: malformed response: %s", provider, what)}
}
