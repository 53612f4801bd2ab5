package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/payraan/narmoonai-test-sub000/internal/admin"
	"github.com/payraan/narmoonai-test-sub000/internal/cache"
	"github.com/payraan/narmoonai-test-sub000/internal/config"
	"github.com/payraan/narmoonai-test-sub000/internal/database"
	"github.com/payraan/narmoonai-test-sub000/internal/repository"
	"github.com/payraan/narmoonai-test-sub000/internal/service"
	"github.com/payraan/narmoonai-test-sub000/internal/storage"
	"github.com/payraan/narmoonai-test-sub000/internal/telegram"
	"github.com/payraan/narmoonai-test-sub000/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	var planCache service.PlanCache
	if cfg.Redis.Enabled() {
		client, err := cache.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer client.Close()
		planCache = cache.NewPlanCache(client, cfg.Plans.CacheTTL)
	}

	var archive service.ReportArchive
	if cfg.S3.Enabled() {
		uploader, err := storage.NewUploader(storage.Config(cfg.S3))
		if err != nil {
			log.Fatalf("storage uploader: %v", err)
		}
		archive = uploader
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		log.Fatalf("telegram bot: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	planRepo := repository.NewPlanRepository(db)
	usageRepo := repository.NewUsageRepository(db)
	referralRepo := repository.NewReferralRepository(db)
	commissionRepo := repository.NewCommissionRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	reportRepo := repository.NewReportRepository(db)

	userService := service.NewUserService(userRepo)
	planService := service.NewPlanService(planRepo, planCache, logr)
	quotaService := service.NewQuotaService(userRepo, usageRepo, cfg.Location, logr)
	subscriptionService := service.NewSubscriptionService(userRepo, planService, logr)
	referralService := service.NewReferralService(userRepo, referralRepo, commissionRepo, logr)
	commissionService := service.NewCommissionService(userRepo, referralRepo, commissionRepo, settingsRepo, nil, logr)
	paymentService := service.NewPaymentService(paymentRepo, referralRepo, subscriptionService, commissionService, logr)
	settingsService := service.NewSettingsService(settingsRepo)
	reportService := service.NewReportService(reportRepo, archive, logr)

	if err := planService.EnsureDefaultCatalog(ctx); err != nil {
		log.Fatalf("ensure default catalog: %v", err)
	}

	bot := telegram.NewBot(telegram.Options{
		Username:             cfg.Telegram.Username,
		PaymentProviderToken: cfg.Telegram.PaymentProviderToken,
		Currency:             cfg.Telegram.Currency,
		PlanDurationDays:     cfg.Plans.DurationDays,
		Location:             cfg.Location,
	}, botAPI, logr, telegram.Services{
		Users:         userService,
		Plans:         planService,
		Quota:         quotaService,
		Subscriptions: subscriptionService,
		Referrals:     referralService,
		Payments:      paymentService,
	})

	adminServer := admin.NewServer(admin.Options{
		Addr:             cfg.Admin.Addr,
		Username:         cfg.Admin.Username,
		Password:         cfg.Admin.Password,
		PlanDurationDays: cfg.Plans.DurationDays,
	}, logr, admin.Services{
		Users:         userService,
		Plans:         planService,
		Quota:         quotaService,
		Subscriptions: subscriptionService,
		Referrals:     referralService,
		Commissions:   commissionService,
		Payments:      paymentService,
		Settings:      settingsService,
		Reports:       reportService,
	}, bot)
	go func() {
		if err := adminServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logr.Error("admin server stopped", "err", err)
		}
	}()

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("bot stopped", "err", err)
	}
}
