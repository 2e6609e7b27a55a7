package codegen

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnthropicProvider(t *testing.T) {
	t.Run(`missing key fails fast`, func(t *testing.T) {
		_, err := NewAnthropicProvider(AnthropicConfig{})
		require.Equal(t, KindConfiguration, KindOf(err))
	})

	t.Run(`system instruction travels in the system field`, func(t *testing.T) {
		var got map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "ak", r.Header.Get("x-api-key"))
			require.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			fmt.Fprint(w, `{"content":[{"type":"text","text":"<html></html>"}]}`)
		}))
		defer srv.Close()

		p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "ak", BaseURL: srv.URL, Model: "m"})
		require.NoError(t, err)
		out, err := p.Complete(context.Background(), Request{System: "sys", Prompt: "p", Temperature: 0.7, MaxTokens: 4000})
		require.NoError(t, err)
		require.Equal(t, "<html></html>", out)
		require.Equal(t, "sys", got["system"])
		require.Equal(t, "m", got["model"])
		require.EqualValues(t, 4000, got["max_tokens"])
	})

	t.Run(`429 is rate limited`, func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
		}))
		defer srv.Close()

		p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "ak", BaseURL: srv.URL})
		require.NoError(t, err)
		_, err = p.Complete(context.Background(), Request{Prompt: "p"})
		require.True(t, IsRateLimited(err))
	})

	t.Run(`empty content is malformed`, func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"content":[]}`)
		}))
		defer srv.Close()

		p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "ak", BaseURL: srv.URL})
		require.NoError(t, err)
		_, err = p.Complete(context.Background(), Request{Prompt: "p"})
		require.Equal(t, KindUpstream, KindOf(err))
	})

	t.Run(`fence-only or blank text is malformed`, func(t *testing.T) {
		for _, text := range []string{"```", "```html\n```", " \n "} {
			body, err := json.Marshal(map[string]any{
				"content": []map[string]string{{"type": "text", "text": text}},
			})
			require.NoError(t, err)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write(body)
			}))
			p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "ak", BaseURL: srv.URL})
			require.NoError(t, err)
			_, err = p.Complete(context.Background(), Request{Prompt: "p"})
			srv.Close()
			require.Equal(t, KindUpstream, KindOf(err), text)
			require.Contains(t, err.Error(), "empty content", text)
		}
	})
}
