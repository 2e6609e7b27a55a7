package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/forge-ai/sitegen/shared/codegen"
	"github.com/forge-ai/sitegen/shared/events"
	"github.com/rs/zerolog"
)

const (
	Version      = "0.3.0"
	maxBodyBytes = 1 << 20
)

// errorResponse is the single failure shape returned to browsers.
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details"`
	Kind    string `json:"kind,omitempty"`
}

func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()

	// REST
	mux.HandleFunc("POST /api/generate-website", g.handleGenerate)
	mux.HandleFunc("POST /functions/v1/generate-website", g.handleGenerate)
	mux.HandleFunc("POST /api/download", g.handleDownload)
	mux.HandleFunc("POST /api/preview", g.handlePreview)
	mux.HandleFunc("GET /api/status", g.handleStatus)

	// WebSocket
	mux.HandleFunc("GET /ws", g.hub.ServeWS)

	// Submission page
	mux.Handle("GET /", webHandler())

	return cors(withRequestLog(mux))
}

func (g *Gateway) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		g.fail(w, r, &codegen.Error{Kind: codegen.KindInvalidInput, Message: "invalid request body", Err: err})
		return
	}

	ctx := r.Context()
	reqID := RequestID(ctx)
	logger := zerolog.Ctx(ctx)
	provider := g.gen.Provider()

	logger.Info().Int("prompt_chars", len(req.Prompt)).Msg("generating website")
	g.emit(ctx, events.GenerationRequested, events.GenerationRequestedPayload{
		RequestID:   reqID,
		Provider:    provider.Name(),
		Model:       provider.Model(),
		PromptChars: len(req.Prompt),
	})

	start := time.Now()
	genCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()
	genCtx = codegen.WithRetryTrace(genCtx, &codegen.RetryTrace{
		Backoff: func(attempt int, delay time.Duration, err error) {
			g.emit(ctx, events.LogEvent, events.LogEventPayload{
				RequestID: reqID,
				Level:     "warn",
				Step:      "rate_limited",
				Message:   fmt.Sprintf("Rate limited, retrying in %s", delay),
				Data:      map[string]any{"attempt": attempt, "delay_ms": delay.Milliseconds()},
			})
		},
	})

	res, err := g.gen.Generate(genCtx, req.Prompt)
	elapsed := time.Since(start)
	if err != nil {
		var gerr *codegen.Error
		errors.As(err, &gerr)
		failed := events.GenerationFailedPayload{
			RequestID:  reqID,
			Kind:       string(codegen.KindOf(err)),
			Error:      err.Error(),
			DurationMS: elapsed.Milliseconds(),
		}
		if gerr != nil {
			failed.Status = gerr.Status
			failed.Attempts = gerr.Attempts
		}
		g.emit(ctx, events.GenerationFailed, failed)
		g.fail(w, r, err)
		return
	}

	logger.Info().
		Int("attempts", res.Attempts).
		Int("code_bytes", len(res.Code)).
		Dur("took", elapsed).
		Msg("website generated")
	g.emit(ctx, events.GenerationComplete, events.GenerationCompletePayload{
		RequestID:  reqID,
		Language:   string(res.Language),
		CodeBytes:  len(res.Code),
		Attempts:   res.Attempts,
		DurationMS: elapsed.Milliseconds(),
	})

	jsonOK(w, res, http.StatusOK)
}

// handleDownload returns the markup as an index.html attachment.
func (g *Gateway) handleDownload(w http.ResponseWriter, r *http.Request) {
	code, ok := readCode(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="index.html"`)
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, code)
}

// handlePreview renders the markup in a sandboxed, opaque origin.
func (g *Gateway) handlePreview(w http.ResponseWriter, r *http.Request) {
	code, ok := readCode(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", "sandbox allow-scripts")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, code)
}

func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	p := g.gen.Provider()
	jsonOK(w, map[string]any{
		"status":   "online",
		"provider": p.Name(),
		"model":    p.Model(),
		"clients":  g.hub.ClientCount(),
		"version":  Version,
	}, http.StatusOK)
}

// fail normalizes any error into the error shape and logs it.
func (g *Gateway) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := codegen.KindOf(err)
	status := statusFor(kind)

	msg := "Failed to generate website. Please try again."
	var gerr *codegen.Error
	if errors.As(err, &gerr) && gerr.Message != "" {
		msg = gerr.Message
	}

	ev := zerolog.Ctx(r.Context()).Error()
	if status < http.StatusInternalServerError {
		ev = zerolog.Ctx(r.Context()).Warn()
	}
	ev.Err(err).Str("kind", string(kind)).Int("status", status).Msg("generation failed")

	jsonErr(w, errorResponse{Error: msg, Details: err.Error(), Kind: string(kind)}, status)
}

func statusFor(kind codegen.Kind) int {
	switch kind {
	case codegen.KindInvalidInput:
		return http.StatusBadRequest
	case codegen.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must hold a single JSON object")
	}
	return nil
}

// readCode accepts {code} as JSON or as a form field so the page can post
// straight into a new browsing context.
func readCode(w http.ResponseWriter, r *http.Request) (string, bool) {
	var code string
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/json" {
		var req struct {
			Code string `json:"code"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			jsonErr(w, errorResponse{Error: "invalid request body", Details: err.Error(), Kind: string(codegen.KindInvalidInput)}, http.StatusBadRequest)
			return "", false
		}
		code = req.Code
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		code = r.FormValue("code")
	}
	if strings.TrimSpace(code) == "" {
		jsonErr(w, errorResponse{Error: "code is required", Details: "code is required", Kind: string(codegen.KindInvalidInput)}, http.StatusBadRequest)
		return "", false
	}
	return code, true
}

func jsonOK(w http.ResponseWriter, v any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, v errorResponse, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		h.Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
