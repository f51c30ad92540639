// Command bridge runs the ERP integration worker: the Asynq scheduler and
// handlers for the four sync pipelines, plus the admin HTTP API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/proconsa/erp-bridge/internal/admin"
	"github.com/proconsa/erp-bridge/internal/app"
	"github.com/proconsa/erp-bridge/internal/notify"
	"github.com/proconsa/erp-bridge/internal/odoo"
	"github.com/proconsa/erp-bridge/internal/odoosync"
	"github.com/proconsa/erp-bridge/internal/pgsync"
	"github.com/proconsa/erp-bridge/internal/platform/cache"
	"github.com/proconsa/erp-bridge/internal/platform/db"
	"github.com/proconsa/erp-bridge/internal/platform/erp"
	"github.com/proconsa/erp-bridge/internal/pricesync"
	"github.com/proconsa/erp-bridge/internal/runlog"
	"github.com/proconsa/erp-bridge/internal/settings"
	"github.com/proconsa/erp-bridge/internal/wix"
	"github.com/proconsa/erp-bridge/internal/wixsync"
	"github.com/proconsa/erp-bridge/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping bridge startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	// Connections.
	erpStore, err := erp.Open(ctx, cfg.MSSQLDSN(), cfg.MSSQLEmpID)
	if err != nil {
		logger.Error("connect erp", slog.Any("error", err))
		os.Exit(1)
	}
	defer erpStore.Close()

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer redisClient.Close()

	odooClient, err := odoo.NewClient(odoo.Credentials{
		URL:      cfg.OdooURL,
		Database: cfg.OdooDB,
		Username: cfg.OdooUsername,
		Password: cfg.OdooPassword,
	}, cfg.OdooTimeout, logger)
	if err != nil {
		logger.Error("build odoo client", slog.Any("error", err))
		os.Exit(1)
	}

	settingsStore := settings.NewStore(pool)
	if err := settingsStore.EnsureSchema(ctx); err != nil {
		logger.Error("settings schema", slog.Any("error", err))
		os.Exit(1)
	}

	runStore := runlog.NewStore(redisClient, cfg.RunSummaryTTL)
	mailer := notify.NewMailer(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}, logger)
	teams := notify.NewTeams(cfg.TeamsWebhookURL, logger)
	wixClient := wix.NewClient(wix.Config{
		BaseURL:       cfg.WixBaseURL,
		APIKey:        cfg.WixAPIKey,
		SiteID:        cfg.WixSiteID,
		RatePerMinute: cfg.WixRatePerMinute,
	}, logger)

	// Pipelines.
	writeOpts := odoosync.Options{
		DryRun:           cfg.DryRun,
		WriteConcurrency: cfg.OdooWriteConcurrency,
		WriteRetries:     cfg.OdooWriteRetries,
		RetryDelay:       cfg.OdooRetryDelay,
		ImageConcurrency: cfg.OdooImageConcurrency,
		SyncImages:       cfg.OdooSyncImages,
	}
	inventoryRunner := jobs.RunnerFunc(func(ctx context.Context) runlog.Summary {
		rec := runlog.NewRecorder("inventory-sync", cfg.DryRun, logger)
		svc := odoosync.NewService(odooClient, odoosync.NewERPStore(erpStore), logger, writeOpts, rec)
		return svc.Run(ctx)
	})
	priceRunner := pricesync.NewService(
		odooClient,
		pricesync.NewERPStore(erpStore, cfg.MSSQLCostBranch),
		logger,
		pricesync.Options{
			DryRun:           cfg.DryRun,
			WriteConcurrency: cfg.OdooWriteConcurrency,
			WriteRetries:     cfg.OdooWriteRetries,
			RetryDelay:       cfg.OdooRetryDelay,
		},
	)
	etlRunner := pgsync.NewService(
		pgsync.NewERPStore(erpStore),
		pool,
		mailer,
		logger,
		pgsync.Options{DryRun: cfg.DryRun, Recipients: cfg.ReportEmails},
	)
	wixRunner := wixsync.NewService(
		wixClient,
		wixsync.NewStore(pool),
		settingsStore,
		logger,
		wixsync.Options{
			BranchPrefix: cfg.WixBranchPrefix,
			MinStock:     cfg.WixMinStock,
			Concurrency:  cfg.WixConcurrency,
			DryRun:       cfg.WixDryRun || cfg.DryRun,
		},
	)

	// Queue wiring.
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	handlers := map[string]asynq.HandlerFunc{
		jobs.TaskInventorySync: jobs.NewSyncHandler("inventory-sync", inventoryRunner, runStore, teams, logger),
		jobs.TaskPriceSync:     jobs.NewSyncHandler("price-sync", priceRunner, runStore, teams, logger),
		jobs.TaskErpPostgres:   jobs.NewSyncHandler("erp-pg-sync", etlRunner, runStore, teams, logger),
		jobs.TaskWixInventory:  jobs.NewSyncHandler("wix-sync", wixRunner, runStore, teams, logger),
	}
	cron := make([]jobs.CronRegistration, 0, len(jobs.TaskNames))
	for name, spec := range map[string]string{
		"inventory-sync": jobs.CronInventorySync,
		"price-sync":     jobs.CronPriceSync,
		"erp-pg-sync":    jobs.CronErpPostgres,
		"wix-sync":       jobs.CronWixInventory,
	} {
		task, err := jobs.NewSyncTask(name)
		if err != nil {
			logger.Error("build cron task", slog.String("task", name), slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{Spec: spec, Task: task})
	}

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("load timezone", slog.String("tz", cfg.Timezone), slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers:  handlers,
		Cron:      cron,
		Location:  location,
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	trigger := jobs.NewClient(redisOpts)
	defer trigger.Close()

	adminSrv := admin.NewServer(admin.Config{
		Addr:         cfg.AdminAddr,
		User:         cfg.AdminUser,
		PasswordHash: cfg.AdminPasswordHash,
		ReadTimeout:  cfg.AdminReadTimeout,
		WriteTimeout: cfg.AdminWriteTimeout,
		Production:   cfg.IsProduction(),
		Tasks: []admin.Task{
			{Name: "inventory-sync", Description: "Catálogo, existencias e imágenes ERP → Odoo", Cron: jobs.CronInventorySync},
			{Name: "price-sync", Description: "Precios y costos ERP → Odoo", Cron: jobs.CronPriceSync},
			{Name: "erp-pg-sync", Description: "Réplica de precios ERP → PostgreSQL con análisis de cambios", Cron: jobs.CronErpPostgres},
			{Name: "wix-sync", Description: "Existencias PostgreSQL → Wix", Cron: jobs.CronWixInventory},
		},
		Trigger: trigger,
		Runs:    runStore,
		Logger:  logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		return adminSrv.Run(gctx)
	})

	logger.Info("bridge started",
		slog.String("admin_addr", cfg.AdminAddr),
		slog.Bool("dry_run", cfg.DryRun))

	if err := g.Wait(); err != nil && !isShutdown(err) {
		logger.Error("bridge stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("bridge stopped")
}

func isShutdown(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
