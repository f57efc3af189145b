package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/auth"
	"bilancio/internal/cli"
	"bilancio/internal/events"
	apphttp "bilancio/internal/http"
	applog "bilancio/internal/log"
	"bilancio/internal/services"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg, logger := cli.LoadAndValidateConfig(applog.ComponentApp)
	logger.Info("Starting bilancio server", "port", cfg.Port, "backend", cfg.DataBackend)

	ctx := context.Background()
	be := cli.OpenBackend(ctx, logger, cfg)
	store := be.Store

	hub := events.NewHub()
	var publisher events.Publisher = hub

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
		publisher = events.Multi{hub, amqpClient}
		logger.Info("Publishing change events to AMQP", "exchange", cfg.AMQPExchange)
	} else {
		logger.Info("AMQP disabled - change events stay in process")
	}

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	loc := cfg.Location()

	dashboard, err := services.NewDashboardService(store, services.DashboardConfig{
		CacheTTL:  cfg.DashboardCacheTTL,
		CacheSize: cfg.DashboardCacheSize,
		Location:  loc,
	})
	if err != nil {
		logger.Error("Failed to initialize dashboard service", applog.FieldError, err)
		os.Exit(1)
	}
	dashboard.Watch(hub)

	reports := services.NewReportService(store, cli.OpenSheets(ctx, logger, cfg))

	// Without a broker the server exports reports itself.
	var syncProcessor *services.SyncProcessor
	if reports.SheetsEnabled() && amqpClient == nil {
		pc := services.DefaultSyncProcessorConfig()
		pc.ResyncInterval = cfg.SyncInterval
		pc.Location = loc
		syncProcessor = services.NewSyncProcessor(reports, pc)
		hub.SubscribeAll(func(_ context.Context, c events.Change) {
			syncProcessor.Enqueue(c.OwnerID, c.Date.Month())
		})
	}

	srv := apphttp.NewServer(apphttp.Config{
		Addr:            ":" + cfg.Port,
		RateLimitPerMin: cfg.RateLimitPerMin,
		AllowedOrigins:  cfg.CORSAllowedOrigin,
		SecureCookies:   cfg.SecureCookies(),
		TrustedProxies:  cfg.TrustedProxyList(),
		CurrencySymbol:  cfg.CurrencySymbol,
		Logger:          logger,
	}, apphttp.Services{
		Accounts:     services.NewAccountService(store, issuer),
		Transactions: services.NewTransactionService(store, publisher, loc),
		Categories:   services.NewCategoryService(store, dashboard),
		Budgets:      services.NewBudgetService(store, dashboard),
		Families:     services.NewFamilyService(store),
		Dashboard:    dashboard,
		Reports:      reports,
	}, issuer, hub, store)
	srv.ReadTimeout = 10 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		var errs []error
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		if syncProcessor != nil {
			if err := syncProcessor.Stop(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		dashboard.Close()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := be.Cleanup(); err != nil {
			errs = append(errs, err)
		}
		if err := errors.Join(errs...); err != nil {
			logger.Error("Shutdown error", applog.FieldError, err)
		}
	})

	if syncProcessor != nil {
		if err := syncProcessor.Start(shutdownCtx); err != nil {
			logger.Error("Failed to start report sync", applog.FieldError, err)
			os.Exit(1)
		}
	}

	logger.Info("Listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
