package main

import (
	"context"
	"errors"
	"os"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/cli"
	applog "bilancio/internal/log"
	"bilancio/internal/services"
	"bilancio/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg, logger := cli.LoadAndValidateConfig(applog.ComponentWorker)
	logger.Info("Starting bilancio-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the worker")
		os.Exit(1)
	}

	ctx := context.Background()
	be := cli.OpenBackend(ctx, logger, cfg)

	writer := cli.OpenSheets(ctx, logger, cfg)
	if writer == nil {
		logger.Error("GOOGLE_SPREADSHEET_ID is required by the worker")
		be.Cleanup()
		os.Exit(1)
	}
	reports := services.NewReportService(be.Store, writer)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		be.Cleanup()
		os.Exit(1)
	}

	pc := services.DefaultSyncProcessorConfig()
	pc.ResyncInterval = cfg.SyncInterval
	pc.Location = cfg.Location()
	processor := services.NewSyncProcessor(reports, pc)
	syncWorker := worker.NewSyncWorker(processor)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		logger.Info("Shutting down worker...", "sync_running", processor.IsRunning(), "pending", processor.Pending())
		var errs []error
		if err := processor.Stop(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := amqpClient.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := be.Cleanup(); err != nil {
			errs = append(errs, err)
		}
		handled, rejected := syncWorker.Stats()
		logger.Info("Worker totals", "handled", handled, "rejected", rejected)
		if err := errors.Join(errs...); err != nil {
			logger.Error("Shutdown error", applog.FieldError, err)
		}
	})

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start report sync", applog.FieldError, err)
		os.Exit(1)
	}

	go func() {
		if err := amqpClient.ConsumeChanges(ctx, syncWorker.HandleChangeMessage); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", applog.FieldError, err)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
