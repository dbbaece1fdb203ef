package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"call-sheets-webhook/internal/config"
	"call-sheets-webhook/internal/observability/logging"

	"github.com/rs/zerolog"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Configuration) *Application {
	a := &Application{
		Cfg: cfg,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	appLogger.Info().Msg("Call sheets webhook application created")
	return a
}

// setupLogger configures the global zerolog logger from the observability config.
func (a *Application) setupLogger() {
	logging.Init(logging.Config{
		Level:      a.Cfg.Observability.LogLevel,
		Format:     a.Cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})

	a.Logger = logging.Logger().With().
		Str("service", "call-sheets-webhook").
		Str("component", "application").
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("logFormat", a.Cfg.Observability.LogFormat).
		Msg("Logger setup completed")
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()

	if a.Cfg.Webhook.Secret == "" {
		startLogger.Warn().Msg("WEBHOOK_SECRET is empty, signed deliveries will be verified against an empty key")
	}
	if !a.Cfg.Webhook.RequireSignature {
		startLogger.Warn().Msg("Unsigned deliveries are accepted without verification")
	}

	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Str("port", a.Cfg.Service.HTTPPort).
		Str("sheetsProvider", a.Cfg.Sheets.Provider).
		Msg("Call sheets webhook starting")

	return nil
}

// Serve binds the HTTP listener and serves until ctx is cancelled, then drains
// in-flight requests within the configured shutdown timeout. ready, if
// non-nil, is called with true once the listener is bound and with false as
// soon as draining starts.
func (a *Application) Serve(ctx context.Context, handler http.Handler, ready func(bool)) error {
	if ready == nil {
		ready = func(bool) {}
	}

	srv := &http.Server{
		Addr:         ":" + a.Cfg.Service.HTTPPort,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	lis, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", lis.Addr().String()).Msg("HTTP server listening")
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	ready(true)

	select {
	case <-ctx.Done():
		ready(false)
		a.Logger.Info().Msg("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Cfg.Service.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		return nil
	case err, ok := <-errCh:
		ready(false)
		if !ok {
			return nil
		}
		return fmt.Errorf("http server error: %w", err)
	}
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	shutdownLogger.Info().
		Dur("uptime", time.Since(a.StartupTime)).
		Msg("Call sheets webhook shutting down")
}
