package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saviobatista/vessel-tracker/internal/api"
	"github.com/saviobatista/vessel-tracker/internal/archive"
	"github.com/saviobatista/vessel-tracker/internal/badger"
	"github.com/saviobatista/vessel-tracker/internal/config"
	"github.com/saviobatista/vessel-tracker/internal/db"
	"github.com/saviobatista/vessel-tracker/internal/db/migrations"
	"github.com/saviobatista/vessel-tracker/internal/logging"
	"github.com/saviobatista/vessel-tracker/internal/metrics"
	"github.com/saviobatista/vessel-tracker/internal/nats"
	"github.com/saviobatista/vessel-tracker/internal/parser"
	"github.com/saviobatista/vessel-tracker/internal/redis"
	"github.com/saviobatista/vessel-tracker/internal/stats"
	"github.com/saviobatista/vessel-tracker/internal/store"
	"github.com/saviobatista/vessel-tracker/internal/telemetry"
	"github.com/saviobatista/vessel-tracker/internal/types"
)

const (
	sourceNATS      = "nats"
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg)
	stop()
	if err != nil {
		logging.Error().Err(err).Msg("Server stopped with error")
		os.Exit(1)
	}
}

// run wires the server from cfg and blocks until ctx is cancelled or the
// HTTP listener fails
func run(ctx context.Context, cfg *config.Config) error {
	docs, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := docs.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing store")
		}
	}()

	st := stats.New()
	ingester := telemetry.NewIngester(docs, cfg.VesselID, st)
	querier := telemetry.NewQuerier(docs, cfg.VesselID, telemetry.QueryOptions{
		DefaultLimit: cfg.HistoryDefaultLimit,
		MaxLimit:     cfg.HistoryMaxLimit,
	}, st)

	var recorder api.Recorder
	if cfg.ArchiveDir != "" {
		arch := archive.New(cfg.ArchiveDir)
		if err := arch.Start(); err != nil {
			return fmt.Errorf("failed to start archive: %w", err)
		}
		defer func() {
			if err := arch.Stop(); err != nil {
				logging.Warn().Err(err).Msg("Error stopping archive")
			}
		}()
		recorder = arch
		logging.Info().Str("dir", cfg.ArchiveDir).Msg("Archiving raw payloads")
	}

	if cfg.NATSURL != "" {
		natsClient, err := nats.New(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("failed to create NATS client: %w", err)
		}
		defer natsClient.Close()

		if err := natsClient.SubscribeTelemetry(newTelemetryHandler(ctx, ingester, recorder, st)); err != nil {
			return fmt.Errorf("failed to subscribe to telemetry: %w", err)
		}
		logging.Info().Str("subject", nats.SubjectTelemetry).Msg("Subscribed to gateway telemetry")
	}

	go st.StartReporting(ctx, cfg.StatsInterval, logStats)

	srv := newHTTPServer(cfg.Addr(), api.NewRouter(ingester, querier, api.Options{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		UploadRateLimit:    cfg.UploadRateLimit,
		StaticDir:          cfg.StaticDir,
		Recorder:           recorder,
		Stats:              st,
	}))

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr).Str("vessel", cfg.VesselID).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve HTTP: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logging.Info().Msg("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	return nil
}

// openStore connects the configured document store backend. The Postgres
// backend is migrated before use.
func openStore(ctx context.Context, cfg *config.Config) (store.DocumentStore, error) {
	var docs store.DocumentStore

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		client, err := db.New(cfg.DBConnStr)
		if err != nil {
			return nil, fmt.Errorf("failed to create database client: %w", err)
		}
		if err := preparePostgres(ctx, client); err != nil {
			client.Close()
			return nil, err
		}
		docs = client
	case config.BackendRedis:
		client, err := redis.New(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis client: %w", err)
		}
		docs = client
	case config.BackendBadger:
		client, err := badger.Open(cfg.BadgerDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open Badger store: %w", err)
		}
		docs = client
	case config.BackendMemory:
		logging.Warn().Msg("Using in-memory store, data is lost on restart")
		docs = store.NewMemory()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	logging.Info().Str("backend", cfg.StoreBackend).Msg("Store ready")
	return store.Instrument(docs, cfg.StoreBackend), nil
}

func preparePostgres(ctx context.Context, client *db.Client) error {
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	applied, err := migrations.New(client.DB()).Migrate(ctx, migrations.All())
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	logging.Info().Int("applied", applied).Msg("Database migrations complete")
	return nil
}

// newTelemetryHandler feeds gateway messages into the same ingest path as
// HTTP uploads. Undecodable payloads are dropped; store failures are
// returned so the message is redelivered.
func newTelemetryHandler(ctx context.Context, ingester api.Ingester, recorder api.Recorder, st *stats.Stats) nats.TelemetryHandler {
	return func(msg *types.TelemetryMessage) error {
		raw, err := parser.ParseBody("application/json", msg.Payload)
		if err != nil {
			st.IncrementRejectedPayloads()
			logging.Warn().Err(err).Str("source", msg.Source).Msg("Rejected gateway telemetry")
			return nil
		}

		if recorder != nil {
			if err := recorder.Record(msg); err != nil {
				logging.Warn().Err(err).Str("source", msg.Source).Msg("Failed to archive gateway telemetry")
			}
		}

		err = ingester.Ingest(ctx, raw)
		metrics.RecordIngest(sourceNATS, err)
		if err != nil {
			return fmt.Errorf("failed to ingest telemetry from %s: %w", msg.Source, err)
		}
		return nil
	}
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func logStats(s *stats.Stats) {
	logging.Info().Fields(s.GetStats()).Msg("Statistics")
}
