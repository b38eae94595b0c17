package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tyemirov/formrelay/internal/config"
	"github.com/tyemirov/formrelay/internal/httpapi"
	"github.com/tyemirov/formrelay/internal/mailer"
	"github.com/tyemirov/formrelay/internal/service"
	"github.com/tyemirov/formrelay/internal/staging"
	"github.com/tyemirov/formrelay/pkg/logging"
)

func main() {
	configuration, configErr := config.LoadConfig()
	if configErr != nil {
		fallbackLogger := logging.NewLogger("INFO", "text")
		for _, errMsg := range strings.Split(configErr.Error(), ", ") {
			fallbackLogger.Error("configuration_error", "detail", errMsg)
		}
		os.Exit(1)
	}

	mainLogger := logging.NewLogger(configuration.LogLevel, configuration.LogFormat)

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runErr := run(signalCtx, configuration, mainLogger); runErr != nil {
		mainLogger.Error("server_stopped", "error", runErr)
		os.Exit(1)
	}
}

// run serves until ctx is cancelled or the listener fails.
func run(ctx context.Context, configuration config.Config, logger *slog.Logger) error {
	store, err := staging.NewStore(configuration.UploadDir, logger)
	if err != nil {
		return err
	}
	if err := store.Prepare(); err != nil {
		return err
	}

	transport, err := buildTransport(ctx, configuration, logger)
	if err != nil {
		return err
	}
	if configuration.MailTransport == config.TransportSMTP && !configuration.SMTPConfigured() {
		logger.Warn("smtp_credentials_missing", "detail", "SMTP_USER or SMTP_PASSWORD is empty; relays will fail until set")
	}

	relayService, err := service.NewRelayService(configuration.FromEmail, transport, store, logger)
	if err != nil {
		return err
	}

	httpServer, err := httpapi.NewServer(httpapi.Config{
		ListenAddr:     configuration.ListenAddr(),
		AllowedOrigins: configuration.HTTPAllowedOrigins,
		RelayService:   relayService,
		Stager:         store,
		MaxUploadBytes: configuration.MaxUploadBytes,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	go store.StartSweeper(
		workerCtx,
		time.Duration(configuration.SweepIntervalSec)*time.Second,
		time.Duration(configuration.StaleUploadSec)*time.Second,
	)

	logger.Info(
		"relay_server_starting",
		"addr", configuration.ListenAddr(),
		"transport", transport.Name(),
		"upload_dir", store.Dir(),
	)

	serveErrors := make(chan error, 1)
	go func() {
		serveErrors <- httpServer.Start()
	}()

	select {
	case serveErr := <-serveErrors:
		return serveErr
	case <-ctx.Done():
	}

	logger.Info("relay_server_shutting_down")
	if shutdownErr := httpServer.Shutdown(context.Background()); shutdownErr != nil {
		return fmt.Errorf("shutdown: %w", shutdownErr)
	}
	return <-serveErrors
}

func buildTransport(ctx context.Context, configuration config.Config, logger *slog.Logger) (mailer.Transport, error) {
	switch configuration.MailTransport {
	case config.TransportSMTP:
		return mailer.NewSMTPTransport(mailer.SMTPConfig{
			Host:              configuration.SMTPHost,
			Port:              configuration.SMTPPort,
			Username:          configuration.SMTPUsername,
			Password:          configuration.SMTPPassword,
			TLSMode:           configuration.SMTPTLSMode,
			ConnectionTimeout: time.Duration(configuration.ConnectionTimeoutSec) * time.Second,
		}, logger)
	case config.TransportSES:
		return mailer.NewSESTransport(ctx, mailer.SESConfig{
			Region:          configuration.SESRegion,
			AccessKeyID:     configuration.SESAccessKeyID,
			SecretAccessKey: configuration.SESSecretAccessKey,
		})
	case config.TransportStdout:
		return mailer.NewStdoutTransport(), nil
	default:
		return nil, fmt.Errorf("unsupported mail transport %q", configuration.MailTransport)
	}
}
