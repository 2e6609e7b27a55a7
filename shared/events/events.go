// Package events defines the generation lifecycle messages published on the
// event bus and relayed to activity-feed clients.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ── Routing keys (RabbitMQ topic exchange: sitegen.events) ───────────────────
const (
	GenerationRequested = "generation.requested"
	GenerationComplete  = "generation.complete"
	GenerationFailed    = "generation.failed"
	LogEvent            = "log.event"
)

// ── Envelope wraps every message ─────────────────────────────────────────────

type Envelope struct {
	ID         string          `json:"id"`
	RoutingKey string          `json:"routing_key"`
	Timestamp  time.Time       `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func Wrap(routingKey string, payload any) ([]byte, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		ID:         uuid.New().String(),
		RoutingKey: routingKey,
		Timestamp:  time.Now().UTC(),
		Payload:    p,
	})
}

func Unwrap[T any](raw []byte) (*T, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	var t T
	return &t, json.Unmarshal(env.Payload, &t)
}

func UnwrapEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	return &env, json.Unmarshal(raw, &env)
}

// ── Payload types ─────────────────────────────────────────────────────────────
// Payloads describe outcomes only; prompts and generated markup are never published.

type GenerationRequestedPayload struct {
	RequestID   string `json:"request_id"`
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	PromptChars int    `json:"prompt_chars"`
}

type GenerationCompletePayload struct {
	RequestID  string `json:"request_id"`
	Language   string `json:"language"`
	CodeBytes  int    `json:"code_bytes"`
	Attempts   int    `json:"attempts"`
	DurationMS int64  `json:"duration_ms"`
}

type GenerationFailedPayload struct {
	RequestID  string `json:"request_id"`
	Kind       string `json:"kind"`
	Error      string `json:"error"`
	Status     int    `json:"status,omitempty"`
	Attempts   int    `json:"attempts"`
	DurationMS int64  `json:"duration_ms"`
}

type LogEventPayload struct {
	RequestID string         `json:"request_id"`
	Level     string         `json:"level"`
	Step      string         `json:"step"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}
