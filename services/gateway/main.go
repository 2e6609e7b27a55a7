// gateway is the public-facing HTTP service.
// It accepts website descriptions from the browser, asks the configured
// LLM provider for a complete HTML document (retrying on rate limits),
// and streams generation lifecycle events to connected browsers over
// WebSocket, optionally through RabbitMQ.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/forge-ai/sitegen/services/gateway/internal"
	"github.com/forge-ai/sitegen/shared/codegen"
	"github.com/forge-ai/sitegen/shared/mq"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	_ = godotenv.Load()

	cfg := internal.ConfigFromEnv()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	provider, err := cfg.NewProvider()
	if err != nil {
		log.Fatal().Err(err).Msg("llm provider")
	}
	gen := codegen.NewGenerator(provider,
		codegen.WithMaxAttempts(cfg.MaxAttempts),
		codegen.WithBaseDelay(cfg.BackoffBase),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info().Msg("shutdown signal, stopping gateway")
		cancel()
	}()

	hub := internal.NewHub()
	var gw *internal.Gateway
	if cfg.AMQPURL != "" {
		broker, err := mq.New(ctx, cfg.AMQPURL)
		if err != nil {
			log.Fatal().Err(err).Msg("mq connect")
		}
		defer broker.Close()
		gw = internal.NewGateway(cfg, gen, hub, broker, broker)
	} else {
		gw = internal.NewGateway(cfg, gen, hub, nil, nil)
	}

	log.Info().
		Str("provider", provider.Name()).
		Str("model", provider.Model()).
		Int("max_attempts", cfg.MaxAttempts).
		Bool("broker", cfg.AMQPURL != "").
		Msg("gateway online")

	if err := gw.Run(ctx); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("gateway exited")
	}
}
