package internal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/forge-ai/sitegen/shared/events"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestHub(t *testing.T) {
	t.Run(`broadcast reaches connected clients`, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		hub := NewHub()
		go hub.Run(ctx)

		srv := httptest.NewServer(withRequestLog(http.HandlerFunc(hub.ServeWS)))
		defer srv.Close()

		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		defer conn.Close()

		require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

		msg, err := events.Wrap(events.GenerationComplete, events.GenerationCompletePayload{RequestID: "r1"})
		require.NoError(t, err)
		require.NoError(t, hub.Publish(ctx, events.GenerationComplete, msg))

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, got, err := conn.ReadMessage()
		require.NoError(t, err)
		env, err := events.UnwrapEnvelope(got)
		require.NoError(t, err)
		require.Equal(t, events.GenerationComplete, env.RoutingKey)
	})

	t.Run(`disconnect removes the client`, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		hub := NewHub()
		go hub.Run(ctx)

		srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
		defer srv.Close()

		conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
		require.NoError(t, err)
		require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

		conn.Close()
		require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	})

	t.Run(`broadcast never blocks without a runner`, func(t *testing.T) {
		hub := NewHub()
		done := make(chan struct{})
		go func() {
			for i := 0; i < 2000; i++ {
				hub.BroadcastRaw([]byte("x"))
			}
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("BroadcastRaw blocked")
		}
	})
}
