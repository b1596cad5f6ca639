package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/saviobatista/vessel-tracker/internal/capture"
	"github.com/saviobatista/vessel-tracker/internal/config"
	"github.com/saviobatista/vessel-tracker/internal/logging"
	"github.com/saviobatista/vessel-tracker/internal/nats"
	"github.com/saviobatista/vessel-tracker/internal/types"
)

// Publisher interface for testability
type Publisher interface {
	PublishTelemetry(msg *types.TelemetryMessage) error
	Close()
}

func main() {
	cfg, err := config.LoadGateway()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	client, err := nats.New(cfg.NATSURL)
	if err != nil {
		logging.Error().Err(err).Str("url", cfg.NATSURL).Msg("Failed to create NATS client")
		os.Exit(1)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := capture.New(cfg.Sources)
	if err := c.Start(); err != nil {
		logging.Error().Err(err).Msg("Failed to start capture")
		return
	}
	logging.Info().Strs("sources", cfg.Sources).Msg("Gateway started")

	go func() {
		<-ctx.Done()
		logging.Info().Msg("Shutting down...")
		c.Stop()
	}()

	published, failed := forward(c.Messages(), client)
	logging.Info().Uint64("published", published).Uint64("failed", failed).Msg("Gateway stopped")
}

// forward publishes every captured message until the channel is closed and
// returns the publish counts
func forward(messages <-chan *types.TelemetryMessage, publisher Publisher) (published, failed uint64) {
	for msg := range messages {
		if err := publisher.PublishTelemetry(msg); err != nil {
			failed++
			logging.Warn().Err(err).Str("source", msg.Source).Msg("Failed to publish telemetry")
			continue
		}
		published++
		logging.Debug().Str("source", msg.Source).Int("bytes", len(msg.Payload)).Msg("Published telemetry")
	}
	return published, failed
}
