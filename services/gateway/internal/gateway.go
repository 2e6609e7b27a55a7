package internal

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/forge-ai/sitegen/shared/codegen"
	"github.com/forge-ai/sitegen/shared/events"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const emitTimeout = 2 * time.Second

var relayPatterns = []string{"generation.#", "log.#"}

// Generator is the part of *codegen.Generator the gateway depends on.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*codegen.Result, error)
	Provider() codegen.Provider
}

// Publisher sends a wrapped lifecycle envelope under a routing key.
// *mq.Broker and *Hub both satisfy it.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Subscriber is the consuming half of the broker, used to relay events
// published by any gateway replica into this replica's hub. An empty queue
// name asks for a private queue so every replica receives every event.
type Subscriber interface {
	Subscribe(queueName string, patterns ...string) (<-chan amqp.Delivery, error)
}

// Gateway is the public HTTP boundary around the generator.
type Gateway struct {
	cfg Config
	gen Generator
	hub *Hub
	pub Publisher
	sub Subscriber
}

// NewGateway wires the gateway. With a nil pub, lifecycle events go straight
// to the hub; sub may be nil when no broker is configured.
func NewGateway(cfg Config, gen Generator, hub *Hub, pub Publisher, sub Subscriber) *Gateway {
	if pub == nil {
		pub = hub
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 3 * time.Minute
	}
	return &Gateway{cfg: cfg, gen: gen, hub: hub, pub: pub, sub: sub}
}

func (g *Gateway) Handler() http.Handler {
	return g.routes()
}

// Run serves HTTP, the hub and the broker relay until ctx is done.
func (g *Gateway) Run(ctx context.Context) error {
	var deliveries <-chan amqp.Delivery
	if g.sub != nil {
		var err error
		deliveries, err = g.sub.Subscribe("", relayPatterns...)
		if err != nil {
			return fmt.Errorf("subscribe relay: %w", err)
		}
	}

	eg, ctx := errgroup.WithContext(ctx)

	// WebSocket hub
	eg.Go(func() error { return g.hub.Run(ctx) })

	// API server (REST + WS + page)
	eg.Go(func() error { return g.serve(ctx) })

	if deliveries != nil {
		eg.Go(func() error { return g.relay(ctx, deliveries) })
	}

	return eg.Wait()
}

func (g *Gateway) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + g.cfg.Port,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		// generation may span every attempt plus the backoff waits
		WriteTimeout: g.cfg.RequestTimeout + 15*time.Second,
	}

	go func() {
		<-ctx.Done()
		timeout := g.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown")
		}
	}()

	log.Info().Str("port", g.cfg.Port).Msg("gateway listening")
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// relay forwards broker deliveries to the local hub.
func (g *Gateway) relay(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("relay delivery channel closed")
			}
			g.hub.BroadcastRaw(d.Body)
			d.Ack(false)
		}
	}
}

// emit publishes a lifecycle event. Failures are logged only; they never
// change the outcome of the request that produced the event.
func (g *Gateway) emit(ctx context.Context, routingKey string, payload any) {
	logger := zerolog.Ctx(ctx)
	b, err := events.Wrap(routingKey, payload)
	if err != nil {
		logger.Error().Err(err).Str("key", routingKey).Msg("wrap event")
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
	defer cancel()
	if err := g.pub.Publish(pubCtx, routingKey, b); err != nil {
		logger.Warn().Err(err).Str("key", routingKey).Msg("publish event")
	}
}
