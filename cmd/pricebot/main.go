package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"printshop-pricing/internal/bot"
	"printshop-pricing/internal/config"
	"printshop-pricing/internal/pricing"
	"printshop-pricing/internal/quote"
	"printshop-pricing/internal/session"
	"printshop-pricing/internal/storage"
	"printshop-pricing/pkg/api"
	"printshop-pricing/pkg/logger"
	"printshop-pricing/pkg/redis"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	zapLogger, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer zapLogger.Sync()

	if err := cfg.RequireBot(); err != nil {
		zapLogger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	redisClient := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx); err != nil {
		zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	defaults := pricing.VATSettings{
		Rate:             cfg.Pricing.VatRate,
		PricesIncludeVAT: cfg.Pricing.IncludeVAT,
		Currency:         cfg.Pricing.Currency,
	}

	pgStorage, err := storage.NewPostgresStorage(ctx, cfg.Database, storage.Options{
		Cache:    redisClient,
		CacheTTL: cfg.Pricing.CatalogTTL,
		Defaults: defaults,
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to init PostgreSQL storage", zap.Error(err))
	}
	defer pgStorage.Close()

	if cfg.Database.RunMigrations {
		if err := storage.RunMigrations(ctx, pgStorage.DB(), zapLogger); err != nil {
			zapLogger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	var settings quote.SettingsSource = pgStorage
	if cfg.ShopAPI.BaseURL != "" {
		settings = api.NewClient(cfg.ShopAPI.BaseURL, cfg.ShopAPI.Token, cfg.ShopAPI.Timeout, zapLogger)
		zapLogger.Info("Reading VAT settings from shop API", zap.String("base_url", cfg.ShopAPI.BaseURL))
	}

	quotes := quote.NewService(pgStorage, settings, pgStorage, pgStorage, quote.Config{
		ExtrapolateAboveMax: cfg.Pricing.ExtrapolateAboveMax,
		SizeKeywords:        cfg.Pricing.SizeKeywords,
	}, zapLogger)

	sessions := session.NewManager(redisClient, quotes)

	tgBot, err := bot.New(cfg, sessions, quotes, pgStorage, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create bot", zap.Error(err))
	}

	if err := tgBot.Start(ctx); err != nil {
		zapLogger.Fatal("Bot stopped with error", zap.Error(err))
	}

	zapLogger.Info("Bot shutdown gracefully")
}
