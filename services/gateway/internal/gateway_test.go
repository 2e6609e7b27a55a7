package internal

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/forge-ai/sitegen/shared/codegen"
	"github.com/forge-ai/sitegen/shared/events"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
)

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, []byte) error {
	return errors.New("broker down")
}

// fakeSubscriber records what Run asks the broker for.
type fakeSubscriber struct {
	queue    string
	patterns []string
	called   bool
	err      error
}

func (f *fakeSubscriber) Subscribe(queue string, patterns ...string) (<-chan amqp.Delivery, error) {
	f.called = true
	f.queue = queue
	f.patterns = patterns
	if f.err != nil {
		return nil, f.err
	}
	return make(chan amqp.Delivery), nil
}

func freePort(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, port, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	require.NoError(t, l.Close())
	return port
}

func TestRun(t *testing.T) {
	t.Run(`subscribe failure returns before anything is started`, func(t *testing.T) {
		port := freePort(t)
		sub := &fakeSubscriber{err: errors.New("channel closed")}
		hub := NewHub()
		g := NewGateway(Config{Port: port}, codegen.NewGenerator(&stubProvider{}), hub, nil, sub)

		done := make(chan error, 1)
		go func() { done <- g.Run(context.Background()) }()

		select {
		case err := <-done:
			require.ErrorContains(t, err, "channel closed")
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not return after subscribe failed")
		}

		require.Never(t, func() bool {
			conn, err := net.DialTimeout("tcp", "127.0.0.1:"+port, 50*time.Millisecond)
			if err != nil {
				return false
			}
			conn.Close()
			return true
		}, 300*time.Millisecond, 50*time.Millisecond)
	})

	t.Run(`each replica relays through its own queue`, func(t *testing.T) {
		sub := &fakeSubscriber{}
		g := NewGateway(Config{Port: freePort(t)}, codegen.NewGenerator(&stubProvider{}), NewHub(), nil, sub)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- g.Run(ctx) }()
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not stop")
		}
		require.True(t, sub.called)
		require.Empty(t, sub.queue)
		require.Equal(t, []string{"generation.#", "log.#"}, sub.patterns)
	})
}

func TestRelay(t *testing.T) {
	t.Run(`deliveries are forwarded to the hub`, func(t *testing.T) {
		hub := NewHub()
		g := NewGateway(Config{}, codegen.NewGenerator(&stubProvider{}), hub, nil, nil)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		deliveries := make(chan amqp.Delivery, 1)
		errc := make(chan error, 1)
		go func() { errc <- g.relay(ctx, deliveries) }()

		body, err := events.Wrap(events.GenerationRequested, events.GenerationRequestedPayload{RequestID: "r"})
		require.NoError(t, err)
		deliveries <- amqp.Delivery{Body: body}

		select {
		case got := <-hub.bc:
			require.Equal(t, body, got)
		case <-time.After(time.Second):
			t.Fatal("delivery not relayed")
		}

		cancel()
		require.NoError(t, <-errc)
	})

	t.Run(`closed delivery channel ends the relay with an error`, func(t *testing.T) {
		g := NewGateway(Config{}, codegen.NewGenerator(&stubProvider{}), NewHub(), nil, nil)
		deliveries := make(chan amqp.Delivery)
		close(deliveries)
		require.Error(t, g.relay(context.Background(), deliveries))
	})
}

func TestEmitFailureDoesNotAffectResponse(t *testing.T) {
	p := &stubProvider{code: "<html></html>"}
	rec := postJSON(t, newTestGateway(p, failingPublisher{}), "/api/generate-website", `{"prompt":"x"}`)
	require.Equal(t, 200, rec.Code)
}
