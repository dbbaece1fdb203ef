package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"call-sheets-webhook/internal/app"
	"call-sheets-webhook/internal/config"
	"call-sheets-webhook/internal/events"
	apihttp "call-sheets-webhook/internal/http"
	"call-sheets-webhook/internal/observability"
	"call-sheets-webhook/internal/observability/metrics"
	"call-sheets-webhook/internal/service/sheets"
	"call-sheets-webhook/internal/service/sheets/google"
	"call-sheets-webhook/internal/service/sheets/mock"
	"call-sheets-webhook/internal/service/webhook"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}
	cfg := config.Load()

	application := app.New(cfg)
	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}
	defer application.Shutdown()

	sheet, err := newAppender(cfg.Sheets)
	if err != nil {
		log.Fatal().Err(err).Str("provider", cfg.Sheets.Provider).Msg("Failed to create sheet appender")
	}

	// Separate topics for written and dropped deliveries
	publisher := events.New(&events.Config{
		Enabled:       cfg.Kafka.Enabled,
		Brokers:       cfg.Kafka.Brokers,
		TopicRecorded: cfg.Kafka.TopicRecorded,
		TopicDropped:  cfg.Kafka.TopicDropped,
		Principal:     cfg.Kafka.Principal,
	}, metrics.DefaultMetrics)
	defer publisher.Close()

	handler := webhook.NewHandler(webhook.Config{
		Secret:           cfg.Webhook.Secret,
		RequireSignature: cfg.Webhook.RequireSignature,
	}, sheet, webhook.WithPublisher(publisher))

	obs := observability.NewServer(cfg.Observability.MetricsAddr)
	obs.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	router := apihttp.NewRouter(application, handler, metrics.DefaultMetrics)
	if err := application.Serve(ctx, router, obs.SetReady); err != nil {
		log.Error().Err(err).Msg("HTTP server stopped with error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := obs.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Observability server shutdown failed")
	}
}

// newAppender selects the sheet backend.
func newAppender(cfg config.SheetsConfig) (sheets.Appender, error) {
	switch cfg.Provider {
	case "mock":
		log.Warn().Msg("Using mock sheet appender, rows are kept in memory only")
		return mock.New(), nil
	case "google", "":
		return google.New(google.Config{
			SpreadsheetID:   cfg.SpreadsheetID,
			CredentialsJSON: cfg.CredentialsJSON,
			Endpoint:        cfg.Endpoint,
		})
	default:
		return nil, fmt.Errorf("unknown sheets provider %q", cfg.Provider)
	}
}
