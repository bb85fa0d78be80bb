package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"gshvpn_backend/internal/controller"
	"gshvpn_backend/internal/repository"
	"gshvpn_backend/internal/service"
	"gshvpn_backend/pkg/config"
	"gshvpn_backend/pkg/cron"
	"gshvpn_backend/pkg/database"
	"gshvpn_backend/pkg/email"
	"gshvpn_backend/pkg/logger"
	"gshvpn_backend/pkg/outline"
	"gshvpn_backend/pkg/payment"
	"gshvpn_backend/pkg/seed"
	"gshvpn_backend/pkg/storage"
	"gshvpn_backend/pkg/utils/jwt"
)

func openDB(cfg config.DatabaseConfig, log zerolog.Logger) (*gorm.DB, error) {
	if cfg.SQLitePath != "" {
		log.Warn().Str("path", cfg.SQLitePath).Msg("using sqlite database")
		return database.OpenSQLite(cfg.SQLitePath)
	}
	return database.InitDB(cfg.DSN(), log)
}

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDB(cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("could not connect to database")
	}
	if err := database.MigrateDatabase(db, log, database.Models...); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	store := repository.NewGormStore(db)
	alloc := service.NewAllocator(store, log)
	lifecycle := service.NewLifecycle(store, alloc, log)
	ledger := service.NewLedger(store, log)
	accounts := service.NewAccounts(store, log)
	servers := service.NewServers(store, log)
	stats := service.NewStats(store)

	if err := seed.Run(ctx, accounts, servers, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("seeding failed")
	}

	var sender email.Sender = email.DisabledSender{}
	if cfg.Resend.Enabled() {
		resend, err := email.NewResendSender(cfg.Resend.APIKey, cfg.Resend.From, log)
		if err != nil {
			log.Fatal().Err(err).Msg("could not initialize email service")
		}
		sender = resend
	} else {
		log.Warn().Msg("RESEND_API_KEY not set, emails are recorded as failed")
	}
	notifier, err := email.NewNotifier(sender, ledger, log)
	if err != nil {
		log.Fatal().Err(err).Msg("could not load email templates")
	}

	var payments payment.Gateway = payment.Disabled{}
	if cfg.Stripe.Enabled() {
		payments = payment.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, log)
	} else {
		log.Warn().Msg("STRIPE_SECRET_KEY not set, paid plans are unavailable")
	}

	panel := outline.NewProvisioner(outline.NewClient(cfg.Outline.Timeout, cfg.Outline.InsecureTLS), alloc, log)

	var archive controller.Archive
	if cfg.R2.Enabled() {
		client, err := storage.NewS3Client(ctx, storage.R2Config{
			AccountID: cfg.R2.AccountID,
			AccessKey: cfg.R2.AccessKey,
			SecretKey: cfg.R2.SecretKey,
			Bucket:    cfg.R2.Bucket,
			Endpoint:  cfg.R2.Endpoint,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("could not initialize R2 client")
		}
		archive = storage.NewConfigArchive(client, cfg.R2.Bucket, cfg.R2.LinkTTL)
	}

	var (
		rdb   *redis.Client
		guard cron.ReminderGuard = cron.NewLedgerGuard(ledger)
	)
	if cfg.Redis.Enabled() {
		rdb, err = database.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, deduplicating reminders through the ledger")
		} else {
			guard = cron.NewRedisGuard(rdb)
		}
	}

	scheduler := cron.NewScheduler(log, cfg.Cron.JobTimeout)
	jobs := []struct {
		spec string
		job  cron.Job
	}{
		{cfg.Cron.ExpirySweep, cron.NewExpirySweep(lifecycle, notifier, panel, time.Now, log)},
		{cfg.Cron.Reminders, cron.NewReminders(lifecycle, notifier, guard, cfg.Cron.ReminderWindow, time.Now, log)},
		{cfg.Cron.HealthCheck, cron.NewHealthCheck(servers, panel, log)},
	}
	for _, j := range jobs {
		if err := scheduler.Add(j.spec, j.job); err != nil {
			log.Fatal().Err(err).Msg("could not schedule job")
		}
	}
	scheduler.Start()

	handler := controller.New(controller.Deps{
		Log:        log,
		Tokens:     jwt.NewManager(cfg.JWT.Secret, cfg.JWT.TTL),
		Accounts:   accounts,
		Lifecycle:  lifecycle,
		Ledger:     ledger,
		Servers:    servers,
		Stats:      stats,
		Notifier:   notifier,
		Payments:   payments,
		Panel:      panel,
		Archive:    archive,
		SuccessURL: cfg.Stripe.SuccessURL,
		CancelURL:  cfg.Stripe.CancelURL,
	})

	app := fiber.New(fiber.Config{
		AppName: "gshvpn",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{AllowOrigins: cfg.Server.AllowedOrigins}))

	handler.SetupRoutes(app)

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("server is running")
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	scheduler.Stop(shutdownCtx)

	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("could not close redis")
		}
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	log.Info().Msg("bye")
}
